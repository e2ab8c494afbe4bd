// Package session owns the connection to one cluster: it dials and probes the
// endpoint, keeps the resource store filled through periodic and on-demand
// refreshes, and writes mutations through to the cluster (or to the store
// alone in demo mode).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"

	"github.com/kaos-tools/kaos-ui/api/v1alpha1"
	"github.com/kaos-tools/kaos-ui/demo"
	"github.com/kaos-tools/kaos-ui/health"
	"github.com/kaos-tools/kaos-ui/k8s"
	"github.com/kaos-tools/kaos-ui/metrics"
	"github.com/kaos-tools/kaos-ui/views/model"
)

type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnecting   State = "Connecting"
	StateConnected    State = "Connected"
)

var states = []string{string(StateDisconnected), string(StateConnecting), string(StateConnected)}

type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

var (
	ErrNotConnected = errors.New("session is not connected")
	// ErrSuperseded is returned by Connect when a later Connect, Disconnect
	// or EnterDemo took over before the probe finished.
	ErrSuperseded = errors.New("connection attempt superseded")
)

const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultRequestTimeout  = 15 * time.Second

	historySize = 20
)

// Transport is the part of *k8s.Client the manager talks to.
type Transport interface {
	Namespace() string
	Host() string
	List(ctx context.Context, kind k8s.Kind, namespace string) ([]unstructured.Unstructured, error)
	Get(ctx context.Context, kind k8s.Kind, namespace, name string) (*unstructured.Unstructured, error)
	Create(ctx context.Context, kind k8s.Kind, namespace string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	Update(ctx context.Context, kind k8s.Kind, namespace, name string, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)
	Delete(ctx context.Context, kind k8s.Kind, namespace, name string) error
	ServerVersion(ctx context.Context) (*version.Info, error)
}

// DialFunc builds a Transport for a connection request.
type DialFunc func(opts k8s.Options) (Transport, error)

// Dial is the default DialFunc, backed by k8s.New.
func Dial(opts k8s.Options) (Transport, error) {
	client, err := k8s.New(opts)
	if err != nil {
		return nil, err
	}
	return client, nil
}

type Options struct {
	RefreshInterval  time.Duration
	RequestTimeout   time.Duration
	FailureThreshold int
	Logger           *zap.SugaredLogger
	Metrics          *metrics.Recorder
	Dial             DialFunc
	// Fixtures supplies the dataset for demo mode.
	Fixtures func() (model.Snapshot, error)
	Now      func() time.Time
}

// Info describes the session for display.
type Info struct {
	State         State     `json:"state"`
	Mode          Mode      `json:"mode"`
	Endpoint      string    `json:"endpoint,omitempty"`
	Namespace     string    `json:"namespace,omitempty"`
	GroupVersion  string    `json:"groupVersion,omitempty"`
	ServerVersion string    `json:"serverVersion,omitempty"`
	Health        string    `json:"health"`
	RefreshState  string    `json:"refreshState"`
	Failures      int       `json:"failures"`
	LastError     string    `json:"lastError,omitempty"`
	LastRefresh   time.Time `json:"lastRefresh,omitempty"`
	LastSuccess   time.Time `json:"lastSuccess,omitempty"`
	Generation    uint64    `json:"generation"`
}

// Manager is the session lifecycle: create, Connect or EnterDemo, refresh and
// mutate, then Disconnect. Every method is safe for concurrent use.
type Manager struct {
	opts     Options
	log      *zap.SugaredLogger
	metrics  *metrics.Recorder
	store    *model.Store
	health   *health.APIHealthTracker
	history  *health.History
	inflight singleflight.Group

	// mu guards the fields below and every store.Reset, so a transport is
	// always paired with the generation it was connected under.
	mu            sync.RWMutex
	state         State
	mode          Mode
	transport     Transport
	namespace     string
	crd           schema.GroupVersion
	serverVersion string
	lastErr       error
	lastRefresh   time.Time

	// demoMu serializes read-modify-write cycles on the store in demo mode.
	demoMu sync.Mutex
}

func NewManager(store *model.Store, opts Options) *Manager {
	if store == nil {
		store = model.NewStore()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.Fixtures == nil {
		opts.Fixtures = demo.Load
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		store:   store,
		state:   StateDisconnected,
		mode:    ModeLive,
		crd:     v1alpha1.GroupVersion,
		history: health.NewHistory(historySize),
	}
	m.health = health.NewAPIHealthTracker(health.Options{MaxFailures: opts.FailureThreshold}, func(state health.APIState, msg string) {
		m.log.Infow("refresh health changed", "state", state.String(), "message", msg)
	})
	m.health.SetOnHealthy(func() {
		m.mu.Lock()
		m.lastErr = nil
		m.mu.Unlock()
		m.log.Infow("refreshes recovered")
	})
	m.health.SetOnDisconnected(func() {
		m.log.Warnw("failure threshold reached, disconnecting")
		m.Disconnect()
	})
	m.metrics.SetSessionState(string(StateDisconnected), states...)
	return m
}

// History returns the recent refresh cycles of the current session, oldest
// first.
func (m *Manager) History() []health.Cycle {
	return m.history.Slice()
}

func (m *Manager) Store() *model.Store {
	return m.store
}

func (m *Manager) Snapshot() model.Snapshot {
	return m.store.Snapshot()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Namespace is the namespace lists are scoped to.
func (m *Manager) Namespace() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.namespace
}

func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{
		State:         m.state,
		Mode:          m.mode,
		Namespace:     m.namespace,
		GroupVersion:  m.crd.String(),
		ServerVersion: m.serverVersion,
		Health:        m.health.GetStatusMessage(),
		RefreshState:  m.health.GetState().String(),
		Failures:      m.health.GetFailureCount(),
		LastRefresh:   m.lastRefresh,
		Generation:    m.store.Generation(),
	}
	switch {
	case m.state == StateDisconnected:
		info.Health = "Disconnected"
	case m.state == StateConnected && m.mode == ModeLive:
		info.LastSuccess = m.health.LastSuccess()
	}
	if m.transport != nil {
		info.Endpoint = m.transport.Host()
	}
	if m.lastErr != nil {
		info.LastError = m.lastErr.Error()
	}
	return info
}

// Connect replaces the current session with a live one. It moves to
// Connected only once the endpoint answered the version probe, then runs
// one RefreshAll whose per-kind failures do not fail the connection.
func (m *Manager) Connect(ctx context.Context, opts k8s.Options) error {
	if opts.Timeout <= 0 {
		opts.Timeout = m.opts.RequestTimeout
	}
	if opts.GroupVersion.Empty() {
		opts.GroupVersion = v1alpha1.GroupVersion
	}

	m.mu.Lock()
	gen := m.store.Reset()
	m.state = StateConnecting
	m.mode = ModeLive
	m.transport = nil
	m.namespace = ""
	m.crd = opts.GroupVersion
	m.serverVersion = ""
	m.lastErr = nil
	m.mu.Unlock()
	m.health.Reset()
	m.history.Clear()
	m.metrics.SetSessionState(string(StateConnecting), states...)
	m.log.Infow("connecting", "endpoint", opts.Endpoint, "context", opts.Context, "namespace", opts.Namespace)

	transport, err := m.opts.Dial(opts)
	if err != nil {
		return m.connectFailed(gen, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	info, err := transport.ServerVersion(probeCtx)
	cancel()
	if err != nil {
		return m.connectFailed(gen, k8s.Classify(err))
	}

	m.mu.Lock()
	if m.store.Generation() != gen {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.state = StateConnected
	m.transport = transport
	m.namespace = transport.Namespace()
	m.serverVersion = info.GitVersion
	m.mu.Unlock()
	m.metrics.SetSessionState(string(StateConnected), states...)
	m.log.Infow("connected", "endpoint", transport.Host(), "namespace", transport.Namespace(), "version", info.GitVersion)

	_, _ = m.RefreshAll(ctx)
	return nil
}

func (m *Manager) connectFailed(gen uint64, err error) error {
	m.mu.Lock()
	current := m.store.Generation() == gen
	if current {
		m.state = StateDisconnected
		m.mode = ModeLive
		m.lastErr = err
	}
	m.mu.Unlock()
	if !current {
		return ErrSuperseded
	}
	m.metrics.SetSessionState(string(StateDisconnected), states...)
	m.log.Warnw("connection failed", "reason", k8s.ReasonOf(err), "error", err)
	return err
}

// Disconnect drops the transport and clears the store. Responses still in
// flight are discarded when they arrive.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.store.Reset()
	wasConnected := m.state != StateDisconnected
	m.state = StateDisconnected
	m.mode = ModeLive
	m.transport = nil
	m.namespace = ""
	m.serverVersion = ""
	m.mu.Unlock()
	m.health.Reset()
	m.metrics.SetSessionState(string(StateDisconnected), states...)
	if wasConnected {
		m.log.Infow("disconnected")
	}
}

// EnterDemo replaces the current session with the built-in fixtures. No
// network calls are made while in demo mode.
func (m *Manager) EnterDemo() error {
	m.mu.Lock()
	gen := m.store.Reset()
	m.state = StateConnecting
	m.mode = ModeDemo
	m.transport = nil
	m.namespace = ""
	m.crd = v1alpha1.GroupVersion
	m.serverVersion = ""
	m.lastErr = nil
	m.mu.Unlock()
	m.health.Reset()
	m.history.Clear()
	m.metrics.SetSessionState(string(StateConnecting), states...)

	snap, err := m.opts.Fixtures()
	if err != nil {
		return m.connectFailed(gen, fmt.Errorf("loading demo data: %w", err))
	}

	m.mu.Lock()
	if !m.store.LoadIf(gen, snap) {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.state = StateConnected
	m.namespace = demo.Namespace
	m.lastRefresh = m.opts.Now()
	m.mu.Unlock()
	m.metrics.SetSessionState(string(StateConnected), states...)
	m.log.Infow("entered demo mode", "namespace", demo.Namespace)
	return nil
}

// current returns the live transport with the generation it belongs to. The
// transport is nil when disconnected or in demo mode.
func (m *Manager) current() (Transport, uint64, Mode, State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transport, m.store.Generation(), m.mode, m.state
}

// Run refreshes every RefreshInterval until ctx is done, backing off while
// refreshes fail.
func (m *Manager) Run(ctx context.Context) error {
	timer := time.NewTimer(m.opts.RefreshInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := m.RefreshAll(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				m.log.Warnw("refresh failed", "error", err)
			}
			timer.Reset(m.health.RetryDelay(m.opts.RefreshInterval))
		}
	}
}
