package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrDuplicateTarget is returned by Add for a target that is already watched.
var ErrDuplicateTarget = errors.New("target already watched")

// Manager owns one Recorder per target.
type Manager struct {
	ctx context.Context
	cfg Config

	mu        sync.Mutex
	recorders map[string]*Recorder
	wg        sync.WaitGroup
}

// NewManager returns a manager whose recorders run until ctx is cancelled.
func NewManager(ctx context.Context, cfg Config) *Manager {
	return &Manager{ctx: ctx, cfg: cfg, recorders: make(map[string]*Recorder)}
}

// Add starts a recorder for t.
func (m *Manager) Add(t Target) error {
	rec, err := NewRecorder(t, m.cfg)
	if err != nil {
		return err
	}
	key := t.String()

	m.mu.Lock()
	if _, ok := m.recorders[key]; ok {
		m.mu.Unlock()
		return ErrDuplicateTarget
	}
	m.recorders[key] = rec
	m.wg.Add(1)
	m.mu.Unlock()

	slog.Info("watching target", slog.String("component", "chat_manager"), slog.String("target", key))
	go func() {
		defer m.wg.Done()
		rec.Run(m.ctx)
	}()
	return nil
}

// Statuses returns one snapshot per recorder, ordered by target.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	recs := make([]*Recorder, 0, len(m.recorders))
	for _, r := range m.recorders {
		recs = append(recs, r)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Wait blocks until every recorder has exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}
