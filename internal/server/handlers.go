package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ytget/yt-web-downloader/internal/model"
	"github.com/ytget/yt-web-downloader/internal/platform"
)

// maxFormBytes bounds request bodies of the form and JSON endpoints
const maxFormBytes = 1 << 20

// Request parameter names
const (
	ParamURL          = "url"
	ParamSessionID    = "session_id"
	ParamFormatCode   = "format_code"
	ParamSubtitleLang = "subtitle_lang"
)

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	summary, err := s.orch.Inspect(r.Context(), params[ParamURL])
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	params, err := readParams(w, r)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	id := strings.TrimSpace(params[ParamSessionID])
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.orch.StartDownload(r.Context(), id, params[ParamFormatCode], params[ParamSubtitleLang]); err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	report, err := s.orch.Poll(chi.URLParam(r, ParamSessionID))
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.orch.FetchFile(chi.URLParam(r, ParamSessionID))
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	// The janitor may reclaim the file between lookup and open
	f, err := os.Open(artifact.Path)
	if err != nil {
		if platform.IsNotExist(err) {
			s.sendError(w, http.StatusNotFound, MsgFileNotAvailable)
			return
		}
		s.logger.Error().Err(err).Str("path", artifact.Path).Msg("Opening artifact failed")
		s.sendError(w, http.StatusInternalServerError, MsgInternal)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.sendError(w, http.StatusNotFound, MsgFileNotAvailable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": artifact.Filename,
	}))
	http.ServeContent(w, r, artifact.Filename, info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readParams accepts a JSON object or form-encoded body and returns its
// string fields
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	params := make(map[string]string)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: malformed JSON body: %v", model.ErrInvalidRequest, err)
		}
		for k, v := range body {
			if str, ok := v.(string); ok {
				params[k] = str
			}
		}
		return params, nil
	}

	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, fmt.Errorf("%w: malformed form body: %v", model.ErrInvalidRequest, err)
	}
	for k := range r.Form {
		params[k] = r.Form.Get(k)
	}
	return params, nil
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

// sendFailure writes the mapped status for an orchestrator error
func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}
	s.sendError(w, status, message)
}
