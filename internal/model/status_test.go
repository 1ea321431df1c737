package model

import "testing"

func TestSessionStatus_IsActive(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		expected bool
	}{
		{StatusReady, false},
		{StatusDownloading, true},
		{StatusCompleted, false},
		{StatusError, false},
	}

	for _, test := range tests {
		result := test.status.IsActive()
		if result != test.expected {
			t.Errorf("SessionStatus(%s).IsActive() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestSessionStatus_CanStart(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		expected bool
	}{
		{StatusReady, true},
		{StatusDownloading, false},
		{StatusCompleted, true},
		{StatusError, true},
		{SessionStatus("bogus"), false},
	}

	for _, test := range tests {
		result := test.status.CanStart()
		if result != test.expected {
			t.Errorf("SessionStatus(%s).CanStart() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestSessionStatus_String(t *testing.T) {
	status := StatusDownloading
	expected := "downloading"
	result := status.String()

	if result != expected {
		t.Errorf("SessionStatus.String() = %s, expected %s", result, expected)
	}
}

func TestSessionStatus_IsValid(t *testing.T) {
	for _, s := range []SessionStatus{StatusReady, StatusDownloading, StatusCompleted, StatusError} {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if SessionStatus("finished").IsValid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		expected bool
	}{
		{StatusReady, StatusDownloading, true},
		{StatusReady, StatusCompleted, false},
		{StatusReady, StatusError, false},
		{StatusDownloading, StatusDownloading, true},
		{StatusDownloading, StatusCompleted, true},
		{StatusDownloading, StatusError, true},
		{StatusDownloading, StatusReady, false},
		{StatusCompleted, StatusDownloading, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusDownloading, true},
		{StatusError, StatusCompleted, false},
		{StatusReady, SessionStatus("paused"), false},
	}

	for _, test := range tests {
		if got := CanTransition(test.from, test.to); got != test.expected {
			t.Errorf("CanTransition(%s, %s) = %v, expected %v", test.from, test.to, got, test.expected)
		}
	}
}
