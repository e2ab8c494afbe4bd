package health

import (
	"errors"
	"testing"
	"time"
)

func TestAPIHealthTracker_InitialState(t *testing.T) {
	tracker := NewAPIHealthTracker(Options{}, nil)

	if tracker.GetState() != APIHealthy {
		t.Errorf("expected initial state to be APIHealthy, got %v", tracker.GetState())
	}

	if tracker.GetFailureCount() != 0 {
		t.Errorf("expected no failures initially, got %d", tracker.GetFailureCount())
	}
}

func TestAPIHealthTracker_ReportSuccess(t *testing.T) {
	var stateChangeCalled bool
	var lastState APIState
	var lastMessage string

	tracker := NewAPIHealthTracker(Options{MaxFailures: 5, RequiredConsecOK: 3}, func(state APIState, msg string) {
		stateChangeCalled = true
		lastState = state
		lastMessage = msg
	})
	var healthy int
	tracker.SetOnHealthy(func() { healthy++ })
	before := tracker.LastSuccess()

	// Report success when already healthy should not trigger callback
	tracker.ReportSuccess()
	if stateChangeCalled {
		t.Error("expected no state change callback when already healthy")
	}

	tracker.ReportError(errors.New("test error"))
	stateChangeCalled = false

	tracker.ReportSuccess()
	tracker.ReportSuccess()
	if stateChangeCalled {
		t.Error("expected no state change before 3 consecutive successes")
	}

	tracker.ReportSuccess()
	if !stateChangeCalled {
		t.Error("expected state change callback after 3 consecutive successes")
	}

	if lastState != APIHealthy {
		t.Errorf("expected state to be APIHealthy, got %v", lastState)
	}

	if lastMessage != "cluster connection restored" {
		t.Errorf("expected message 'cluster connection restored', got '%s'", lastMessage)
	}

	if tracker.GetFailureCount() != 0 {
		t.Errorf("expected failure count reset, got %d", tracker.GetFailureCount())
	}

	if healthy != 1 {
		t.Errorf("expected healthy callback once, got %d", healthy)
	}

	if tracker.LastSuccess().Before(before) {
		t.Error("expected LastSuccess to advance")
	}
}

func TestAPIHealthTracker_MinUnhealthyTime(t *testing.T) {
	tracker := NewAPIHealthTracker(Options{RequiredConsecOK: 1, MinUnhealthyTime: time.Hour}, nil)

	tracker.ReportError(errors.New("test error"))
	tracker.ReportSuccess()
	if tracker.GetState() == APIHealthy {
		t.Error("expected success inside MinUnhealthyTime to be ignored")
	}

	tracker.mu.Lock()
	tracker.lastErrorTime = time.Now().Add(-2 * time.Hour)
	tracker.mu.Unlock()

	tracker.ReportSuccess()
	if tracker.GetState() != APIHealthy {
		t.Error("expected recovery once MinUnhealthyTime has passed")
	}
}

func TestAPIHealthTracker_ReportError(t *testing.T) {
	var states []APIState
	var disconnected int

	tracker := NewAPIHealthTracker(Options{MaxFailures: 3}, func(state APIState, msg string) {
		states = append(states, state)
	})
	tracker.SetOnDisconnected(func() { disconnected++ })

	tracker.ReportError(errors.New("refused"))
	if tracker.GetState() != APIUnhealthy {
		t.Errorf("expected APIUnhealthy after first error, got %v", tracker.GetState())
	}

	tracker.ReportError(errors.New("refused"))
	if tracker.GetStatusMessage() != "Refresh failing (2/3)" {
		t.Errorf("unexpected status message %q", tracker.GetStatusMessage())
	}

	tracker.ReportError(errors.New("refused"))
	if tracker.GetState() != APIDisconnected {
		t.Errorf("expected APIDisconnected after 3 errors, got %v", tracker.GetState())
	}
	if disconnected != 1 {
		t.Errorf("expected disconnect callback once, got %d", disconnected)
	}

	// errors after disconnect are ignored
	tracker.ReportError(errors.New("refused"))
	if disconnected != 1 || len(states) != 3 {
		t.Errorf("expected no callbacks after disconnect, got %d states", len(states))
	}

	if tracker.lastError == nil {
		t.Error("expected last error to be recorded")
	}
}

func TestAPIHealthTracker_Reset(t *testing.T) {
	tracker := NewAPIHealthTracker(Options{MaxFailures: 1}, nil)
	tracker.ReportError(errors.New("refused"))
	if tracker.GetState() != APIDisconnected {
		t.Fatal("expected disconnect")
	}

	tracker.Reset()
	if tracker.GetState() != APIHealthy || tracker.GetFailureCount() != 0 || tracker.lastError != nil {
		t.Error("expected Reset to restore a healthy tracker")
	}
}

func TestAPIHealthTracker_RetryDelay(t *testing.T) {
	tracker := NewAPIHealthTracker(Options{MaxFailures: 10, MaxBackoff: 30 * time.Second}, nil)
	interval := 5 * time.Second

	if got := tracker.RetryDelay(interval); got != interval {
		t.Errorf("expected %v while healthy, got %v", interval, got)
	}

	tracker.ReportError(errors.New("refused"))
	tracker.ReportError(errors.New("refused"))
	if got := tracker.RetryDelay(interval); got != 10*time.Second {
		t.Errorf("expected 10s after two failures, got %v", got)
	}

	tracker.ReportError(errors.New("refused"))
	tracker.ReportError(errors.New("refused"))
	if got := tracker.RetryDelay(interval); got != 30*time.Second {
		t.Errorf("expected delay capped at 30s, got %v", got)
	}
}
