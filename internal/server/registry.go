package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/metrics"
	"github.com/rbright/trace/internal/session"
)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("too many active sessions")
)

// minSweepInterval bounds how often idle sessions are checked.
const minSweepInterval = time.Second

// registry holds the live sessions created through the API, keyed by uuid.
type registry struct {
	limit    int
	analyzer analysis.Analyzer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// entry tracks a session's last API access and its open event streams.
type entry struct {
	ctrl     *session.Controller
	lastSeen time.Time
	watchers int
}

func newRegistry(limit int, analyzer analysis.Analyzer, m *metrics.Metrics, logger *slog.Logger, now func() time.Time) *registry {
	return &registry{
		limit:    limit,
		analyzer: analyzer,
		metrics:  m,
		logger:   logger,
		now:      now,
		sessions: make(map[string]*entry),
	}
}

func (r *registry) create(ctx context.Context) (string, *session.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.limit {
		return "", nil, errTooManySessions
	}

	id := uuid.NewString()
	ctrl := session.NewController(session.Options{
		Logger:   r.logger.With("session", id),
		Analyzer: r.analyzer,
		Metrics:  r.metrics,
	})
	r.sessions[id] = &entry{ctrl: ctrl, lastSeen: r.now()}
	r.metrics.SessionOpened(ctx)
	return id, ctrl, nil
}

func (r *registry) get(id string) (*session.Controller, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	e.lastSeen = r.now()
	return e.ctrl, nil
}

// attach marks an open event stream; watched sessions are never evicted.
func (r *registry) attach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.watchers++
		e.lastSeen = r.now()
	}
}

func (r *registry) detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.watchers > 0 {
		e.watchers--
		e.lastSeen = r.now()
	}
}

func (r *registry) remove(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errSessionNotFound
	}
	e.ctrl.Close()
	r.metrics.SessionClosed(ctx)
	return nil
}

// expire closes sessions that have no event stream, no analysis in flight,
// and no API access within idle. It returns the evicted ids.
func (r *registry) expire(ctx context.Context, idle time.Duration) []string {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []string
	for id, e := range r.sessions {
		if e.watchers > 0 || e.lastSeen.After(cutoff) {
			continue
		}
		if e.ctrl.State().Phase().Busy() {
			continue
		}
		stale = append(stale, id)
	}
	r.mu.Unlock()

	evicted := stale[:0]
	for _, id := range stale {
		if err := r.remove(ctx, id); err != nil {
			continue
		}
		r.logger.Info("session expired", "session", id, "idle", idle.String())
		evicted = append(evicted, id)
	}
	return evicted
}

// sweep runs expire on a ticker until ctx is done.
func (r *registry) sweep(ctx context.Context, idle time.Duration) {
	interval := max(idle/4, minSweepInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire(ctx, idle)
		}
	}
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) closeAll(ctx context.Context) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Close()
		r.metrics.SessionClosed(ctx)
	}
}
