package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/livechat-tender/livechat"
	"github.com/onnwee/livechat-tender/telemetry"
)

// Store archives sessions and comments. *db.Store satisfies it.
type Store interface {
	CreateSession(ctx context.Context, target, broadcastID string, startedAt time.Time) (string, error)
	EndSession(ctx context.Context, id, reason string, endedAt time.Time) error
	InsertComment(ctx context.Context, sessionID, broadcastID string, c livechat.Comment) (bool, error)
}

// Publisher forwards events to a message bus. *events.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, broadcastID string, ev livechat.Event) error
}

// Broadcaster pushes comments to live subscribers. *server.Hub satisfies it.
type Broadcaster interface {
	Broadcast(broadcastID string, c livechat.Comment)
}

// Target is a channel or a single live video. Exactly one field is set.
type Target struct {
	ChannelID string `json:"channel_id,omitempty"`
	LiveID    string `json:"live_id,omitempty"`
}

// ErrInvalidTarget is returned for a target with none or both ids set.
var ErrInvalidTarget = errors.New("target needs exactly one of channel_id or live_id")

// Validate reports ErrInvalidTarget unless exactly one id is set.
func (t Target) Validate() error {
	if (t.ChannelID == "") == (t.LiveID == "") {
		return ErrInvalidTarget
	}
	return nil
}

// String is the key used in status output and the sessions table.
func (t Target) String() string {
	if t.ChannelID != "" {
		return "channel:" + t.ChannelID
	}
	return "live:" + t.LiveID
}

// Recorder states reported by Status.
const (
	StateWaiting = "waiting"
	StateLive    = "live"
	StateStopped = "stopped"
)

// Status is a snapshot of a recorder.
type Status struct {
	Target      string     `json:"target"`
	State       string     `json:"state"`
	BroadcastID string     `json:"broadcast_id,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	Comments    int64      `json:"comments"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	LastReason  string     `json:"last_end_reason,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}

// Config carries the collaborators shared by all recorders. Nil sinks are skipped.
type Config struct {
	Store       Store
	Publisher   Publisher
	Broadcaster Broadcaster

	Client        livechat.HTTPClient
	Lookup        livechat.LiveLookup
	BaseURL       string
	Interval      time.Duration
	RetryInterval time.Duration
	Logger        *slog.Logger
}

const sinkTimeout = 5 * time.Second

// Recorder follows one target across broadcasts.
type Recorder struct {
	target Target
	cfg    Config
	log    *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewRecorder validates t and returns an idle recorder.
func NewRecorder(t Target, cfg Config) (*Recorder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		target: t,
		cfg:    cfg,
		log:    log.With(slog.String("component", "chat_recorder"), slog.String("target", t.String())),
		status: Status{Target: t.String(), State: StateWaiting},
	}, nil
}

// Status returns a copy of the current status.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	return s
}

func (r *Recorder) update(fn func(*Status)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

// Run attaches to the target until ctx is cancelled, retrying every
// RetryInterval while the target is offline or after a broadcast ends.
func (r *Recorder) Run(ctx context.Context) {
	r.log.Info("recorder started", slog.Duration("retry_interval", r.cfg.RetryInterval))
	defer func() {
		r.update(func(s *Status) { s.State = StateStopped })
		r.log.Info("recorder exited")
	}()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.RunOnce(ctx); err != nil {
			r.log.Error("recorder attempt failed", slog.Any("err", err))
			r.update(func(s *Status) { s.LastError = err.Error() })
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RetryInterval):
		}
	}
}

// RunOnce performs a single attach: it returns when the start fails or the
// started session has ended.
func (r *Recorder) RunOnce(ctx context.Context) error {
	lc, err := livechat.New(livechat.Options{
		ChannelID: r.target.ChannelID,
		LiveID:    r.target.LiveID,
		Client:    r.cfg.Client,
		Interval:  r.cfg.Interval,
		BaseURL:   r.cfg.BaseURL,
		Lookup:    r.cfg.Lookup,
		Logger:    r.cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("new live chat: %w", err)
	}
	r.update(func(s *Status) { s.Attempts++ })

	sess := &session{r: r, ctx: ctx}
	lc.Subscribe(sess.handle)
	if !lc.Start(ctx) {
		return nil
	}
	lc.Wait()
	return nil
}

// session routes the events of one LiveChat to the sinks. Events arrive
// sequentially from a single goroutine at a time.
type session struct {
	r           *Recorder
	ctx         context.Context
	id          string
	broadcastID string
}

func (s *session) handle(ev livechat.Event) {
	r := s.r
	switch e := ev.(type) {
	case livechat.Started:
		s.broadcastID = e.BroadcastID
		now := time.Now().UTC()
		if r.cfg.Store != nil {
			ctx, cancel := s.sinkContext()
			id, err := r.cfg.Store.CreateSession(ctx, r.target.String(), e.BroadcastID, now)
			cancel()
			if err != nil {
				r.sinkFailed("store", err)
			}
			s.id = id
		}
		r.update(func(st *Status) {
			st.State = StateLive
			st.BroadcastID = e.BroadcastID
			st.SessionID = s.id
			st.StartedAt = &now
			st.LastError = ""
		})
		r.log.Info("session started", slog.String("broadcast_id", e.BroadcastID), slog.String("session_id", s.id))
	case livechat.CommentEvent:
		if r.cfg.Store != nil {
			ctx, cancel := s.sinkContext()
			inserted, err := r.cfg.Store.InsertComment(ctx, s.id, s.broadcastID, e.Comment)
			cancel()
			switch {
			case err != nil:
				r.sinkFailed("store", err)
			case inserted:
				telemetry.IncCommentStored()
			}
		}
		if r.cfg.Broadcaster != nil {
			r.cfg.Broadcaster.Broadcast(s.broadcastID, e.Comment)
		}
		r.update(func(st *Status) { st.Comments++ })
	case livechat.Ended:
		if r.cfg.Store != nil && s.id != "" {
			ctx, cancel := s.sinkContext()
			if err := r.cfg.Store.EndSession(ctx, s.id, e.Reason, time.Now().UTC()); err != nil {
				r.sinkFailed("store", err)
			}
			cancel()
		}
		r.update(func(st *Status) {
			st.State = StateWaiting
			st.LastReason = e.Reason
		})
		r.log.Info("session ended", slog.String("broadcast_id", s.broadcastID), slog.String("reason", e.Reason))
	case livechat.Failed:
		r.update(func(st *Status) { st.LastError = e.Err.Error() })
		r.logFailure(e.Err)
	}

	if r.cfg.Publisher != nil && s.broadcastID != "" {
		ctx, cancel := s.sinkContext()
		if err := r.cfg.Publisher.Publish(ctx, s.broadcastID, ev); err != nil {
			r.sinkFailed("nats", err)
		}
		cancel()
	}
}

// sinkContext survives cancellation of the recorder context so the final
// Ended event still reaches the sinks.
func (s *session) sinkContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), sinkTimeout)
}

func (r *Recorder) sinkFailed(sink string, err error) {
	telemetry.IncSinkFailure(sink)
	r.log.Warn("sink write failed", slog.String("sink", sink), slog.Any("err", err))
}

func (r *Recorder) logFailure(err error) {
	switch {
	case errors.Is(err, livechat.ErrStreamOffline), errors.Is(err, livechat.ErrStreamNotFound):
		r.log.Debug("target not live", slog.Any("err", err))
	default:
		var pe *livechat.PollError
		if errors.As(err, &pe) && livechat.ClassifyPollError(pe.Err) == livechat.ErrorClassRetryable {
			r.log.Info("poll failed, will retry on next tick", slog.Any("err", err))
			return
		}
		r.log.Warn("live chat failure", slog.Any("err", err))
	}
}
