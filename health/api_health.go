package health

import (
	"fmt"
	"sync"
	"time"
)

// APIState represents the health of the refresh cycle against the cluster
type APIState int

const (
	APIHealthy      APIState = iota // Refreshes succeed
	APIUnhealthy                    // Refreshes failing, still connected
	APIDisconnected                 // Failure threshold reached
)

func (s APIState) String() string {
	switch s {
	case APIHealthy:
		return "Healthy"
	case APIUnhealthy:
		return "Unhealthy"
	case APIDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// Options tunes an APIHealthTracker. Zero values select the defaults.
type Options struct {
	// MaxFailures is the number of consecutive failed refresh cycles that
	// disconnect the session.
	MaxFailures int
	// RequiredConsecOK is the number of consecutive successes needed to
	// leave the unhealthy state.
	RequiredConsecOK int
	// MinUnhealthyTime is how long to stay unhealthy before successes count.
	MinUnhealthyTime time.Duration
	// MaxBackoff caps RetryDelay.
	MaxBackoff time.Duration
}

const (
	defaultMaxFailures      = 3
	defaultRequiredConsecOK = 2
	defaultMaxBackoff       = 2 * time.Minute
)

// APIHealthTracker counts consecutive refresh failures and reports when the
// session should give up on the cluster.
type APIHealthTracker struct {
	state            APIState
	failures         int
	maxFailures      int
	lastError        error
	lastSuccessTime  time.Time
	lastErrorTime    time.Time
	consecutiveOK    int
	requiredConsecOK int
	minUnhealthyTime time.Duration
	maxBackoff       time.Duration
	mu               sync.RWMutex

	// Callbacks
	onStateChange  func(APIState, string)
	onHealthy      func()
	onDisconnected func()
}

// NewAPIHealthTracker creates a new health tracker with the given state change callback
func NewAPIHealthTracker(opts Options, onStateChange func(APIState, string)) *APIHealthTracker {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.RequiredConsecOK <= 0 {
		opts.RequiredConsecOK = defaultRequiredConsecOK
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return &APIHealthTracker{
		state:            APIHealthy,
		maxFailures:      opts.MaxFailures,
		requiredConsecOK: opts.RequiredConsecOK,
		minUnhealthyTime: opts.MinUnhealthyTime,
		maxBackoff:       opts.MaxBackoff,
		lastSuccessTime:  time.Now(),
		onStateChange:    onStateChange,
	}
}

// SetOnHealthy sets the callback for when refreshes recover
func (h *APIHealthTracker) SetOnHealthy(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onHealthy = callback
}

// SetOnDisconnected sets the callback for when the failure threshold is reached
func (h *APIHealthTracker) SetOnDisconnected(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDisconnected = callback
}

// ReportSuccess should be called after a refresh cycle that reached the cluster
func (h *APIHealthTracker) ReportSuccess() {
	h.mu.Lock()

	h.lastSuccessTime = time.Now()
	h.lastError = nil

	if h.state != APIUnhealthy {
		h.consecutiveOK = h.requiredConsecOK
		h.mu.Unlock()
		return
	}

	// successes right after an error may be served from caches
	if !h.lastErrorTime.IsZero() && time.Since(h.lastErrorTime) < h.minUnhealthyTime {
		h.mu.Unlock()
		return
	}

	h.consecutiveOK++
	if h.consecutiveOK < h.requiredConsecOK {
		h.mu.Unlock()
		return
	}

	h.state = APIHealthy
	h.failures = 0
	onStateChange, onHealthy := h.onStateChange, h.onHealthy
	h.mu.Unlock()

	if onStateChange != nil {
		onStateChange(APIHealthy, "cluster connection restored")
	}
	if onHealthy != nil {
		onHealthy()
	}
}

// ReportError should be called after a refresh cycle that could not reach the cluster
func (h *APIHealthTracker) ReportError(err error) {
	h.mu.Lock()

	if h.state == APIDisconnected {
		h.mu.Unlock()
		return
	}

	h.lastError = err
	h.lastErrorTime = time.Now()
	h.consecutiveOK = 0
	h.failures++

	var msg string
	var disconnected bool
	switch {
	case h.failures >= h.maxFailures:
		h.state = APIDisconnected
		disconnected = true
		msg = fmt.Sprintf("disconnected after %d failed refreshes: %v", h.failures, err)
	case h.state == APIHealthy:
		h.state = APIUnhealthy
		msg = fmt.Sprintf("refresh failed (%d/%d): %v", h.failures, h.maxFailures, err)
	default:
		msg = fmt.Sprintf("refresh failed (%d/%d): %v", h.failures, h.maxFailures, err)
	}
	onStateChange, onDisconnected := h.onStateChange, h.onDisconnected
	state := h.state
	h.mu.Unlock()

	if onStateChange != nil {
		onStateChange(state, msg)
	}
	if disconnected && onDisconnected != nil {
		onDisconnected()
	}
}

// Reset returns the tracker to healthy, as when a new connection is made.
func (h *APIHealthTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = APIHealthy
	h.failures = 0
	h.lastError = nil
	h.lastErrorTime = time.Time{}
	h.consecutiveOK = h.requiredConsecOK
	h.lastSuccessTime = time.Now()
}

// RetryDelay returns how long to wait before the next refresh given the
// regular interval: the interval doubled per consecutive failure.
func (h *APIHealthTracker) RetryDelay(interval time.Duration) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state != APIUnhealthy || h.failures == 0 {
		return interval
	}
	delay := interval * time.Duration(1<<(h.failures-1))
	if delay > h.maxBackoff || delay <= 0 {
		return h.maxBackoff
	}
	return delay
}

// GetState returns the current health state
func (h *APIHealthTracker) GetState() APIState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}


// GetFailureCount returns the number of consecutive failed refreshes
func (h *APIHealthTracker) GetFailureCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failures
}

// LastSuccess returns when the last successful refresh completed
func (h *APIHealthTracker) LastSuccess() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSuccessTime
}

// GetStatusMessage returns a human-readable status message
func (h *APIHealthTracker) GetStatusMessage() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch h.state {
	case APIHealthy:
		return "Connected"
	case APIUnhealthy:
		return fmt.Sprintf("Refresh failing (%d/%d)", h.failures, h.maxFailures)
	case APIDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}


