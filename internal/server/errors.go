package server

import (
	"errors"
	"net/http"

	"github.com/ytget/yt-web-downloader/internal/model"
)

// Client-facing messages for errors whose detail is not shown
const (
	MsgInvalidSession   = "Invalid session_id"
	MsgFileNotAvailable = "File not available or not found"
	MsgRateLimited      = "Rate limit exceeded. Try again later."
	MsgInternal         = "Internal server error"
)

// statusFor maps an orchestrator error to an HTTP status and message
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, MsgInvalidSession
	case errors.Is(err, model.ErrArtifactMissing):
		return http.StatusNotFound, MsgFileNotAvailable
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrInspection):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}
