package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaos-tools/kaos-ui/health"
	"github.com/kaos-tools/kaos-ui/k8s"
)

// RefreshResult reports the outcome of one refresh cycle. Kinds missing from
// Errors were committed (or discarded because the session changed).
type RefreshResult struct {
	Generation uint64
	Errors     map[k8s.Kind]error
}

// Err joins the per-kind failures in refresh order, or returns nil.
func (r RefreshResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	kinds := make([]k8s.Kind, 0, len(r.Errors))
	for kind := range r.Errors {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kindIndex(kinds[i]) < kindIndex(kinds[j]) })
	errs := make([]error, 0, len(kinds))
	for _, kind := range kinds {
		errs = append(errs, fmt.Errorf("%s: %w", kind, r.Errors[kind]))
	}
	return errors.Join(errs...)
}

func kindIndex(kind k8s.Kind) int {
	for i, k := range k8s.Kinds {
		if k == kind {
			return i
		}
	}
	return len(k8s.Kinds)
}

// RefreshAll lists every tracked kind concurrently. A failing kind keeps its
// previous collection and does not stop the others. In demo mode nothing is
// fetched.
func (m *Manager) RefreshAll(ctx context.Context) (RefreshResult, error) {
	transport, gen, mode, state := m.current()
	res := RefreshResult{Generation: gen, Errors: make(map[k8s.Kind]error)}
	if mode == ModeDemo && state == StateConnected {
		return res, nil
	}
	if transport == nil {
		return res, ErrNotConnected
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, kind := range k8s.Kinds {
		g.Go(func() error {
			if err := m.refresh(ctx, transport, gen, kind); err != nil {
				mu.Lock()
				res.Errors[kind] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.reportCycle(gen, res)
	return res, nil
}

// Refresh lists a single kind.
func (m *Manager) Refresh(ctx context.Context, kind k8s.Kind) error {
	if kind.Plural() == "" {
		return k8s.NewValidationError(fmt.Sprintf("unknown resource kind %q", kind), nil)
	}
	transport, gen, mode, state := m.current()
	if mode == ModeDemo && state == StateConnected {
		return nil
	}
	if transport == nil {
		return ErrNotConnected
	}
	return m.refresh(ctx, transport, gen, kind)
}

func inflightKey(gen uint64, kind k8s.Kind) string {
	return fmt.Sprintf("%d/%s", gen, kind)
}

// refresh joins the list already in flight for kind, or starts one. Callers
// that join share the leader's result and issue no request of their own.
func (m *Manager) refresh(ctx context.Context, transport Transport, gen uint64, kind k8s.Kind) error {
	leader := false
	ch := m.inflight.DoChan(inflightKey(gen, kind), func() (any, error) {
		leader = true
		return nil, m.fetch(ctx, transport, gen, kind)
	})
	select {
	case res := <-ch:
		if !leader {
			m.metrics.RefreshSuppressed(string(kind))
		}
		return res.Err
	case <-ctx.Done():
		return k8s.Classify(ctx.Err())
	}
}

// fetch runs detached from the caller's context so an abandoned caller does
// not cancel the request other callers joined, and bounded by RequestTimeout
// so a hung request always releases its in-flight slot.
func (m *Manager) fetch(ctx context.Context, transport Transport, gen uint64, kind k8s.Kind) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.RequestTimeout)
	defer cancel()

	start := time.Now()
	items, err := transport.List(ctx, kind, "")
	err = k8s.Classify(err)
	m.metrics.ObserveRefresh(string(kind), time.Since(start), err)
	if err != nil {
		m.log.Warnw("refresh failed",
			"kind", kind,
			"reason", k8s.ReasonOf(err),
			"status", statusOf(err),
			"error", err,
		)
		return err
	}

	committed, err := m.store.ReplaceAllIf(gen, kind, items)
	if err != nil {
		err = &k8s.Error{Reason: k8s.ReasonServerError, Message: fmt.Sprintf("decoding %s list", kind), Err: err}
		m.log.Warnw("refresh failed", "kind", kind, "reason", k8s.ReasonServerError, "error", err)
		return err
	}
	if !committed {
		m.metrics.RefreshDiscarded(string(kind))
		m.log.Debugw("discarded stale refresh", "kind", kind, "generation", gen)
		return nil
	}

	m.mu.Lock()
	if m.store.Generation() == gen {
		m.lastRefresh = m.opts.Now()
	}
	m.mu.Unlock()
	m.log.Debugw("refreshed", "kind", kind, "items", len(items))
	return nil
}

// reportCycle feeds the health tracker. A cycle counts as failed only when no
// kind could be listed and the cluster itself looked unreachable or broken;
// missing CRDs alone never disconnect.
func (m *Manager) reportCycle(gen uint64, res RefreshResult) {
	if m.store.Generation() != gen {
		return
	}
	m.history.Add(cycleOf(m.opts.Now(), res))
	if len(res.Errors) < len(k8s.Kinds) {
		m.health.ReportSuccess()
		return
	}
	for _, kind := range k8s.Kinds {
		err := res.Errors[kind]
		if k8s.IsUnreachable(err) || k8s.IsServerError(err) || k8s.IsUnauthorized(err) {
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			m.health.ReportError(err)
			return
		}
	}
}

func cycleOf(at time.Time, res RefreshResult) health.Cycle {
	c := health.Cycle{At: at, Generation: res.Generation, Kinds: len(k8s.Kinds), Failed: len(res.Errors)}
	if len(res.Errors) > 0 {
		c.Errors = make(map[string]string, len(res.Errors))
		for kind, err := range res.Errors {
			c.Errors[string(kind)] = err.Error()
		}
	}
	return c
}

func statusOf(err error) int {
	var typed *k8s.Error
	if errors.As(err, &typed) {
		return typed.StatusCode
	}
	return 0
}
