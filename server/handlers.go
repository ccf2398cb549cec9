package server

import (
	"context"
	"time"

	"github.com/onnwee/livechat-tender/chat"
	"github.com/onnwee/livechat-tender/db"
)

// Archive is the read side of the comment store. *db.Store satisfies it.
type Archive interface {
	ListComments(ctx context.Context, broadcastID string, since time.Time, limit int) ([]db.CommentRow, error)
	ListSessions(ctx context.Context, limit int) ([]db.SessionRow, error)
}

// Watcher manages recorders. *chat.Manager satisfies it.
type Watcher interface {
	Add(t chat.Target) error
	Statuses() []chat.Status
}

// Pinger checks a dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the HTTP API. Nil members disable the
// endpoints that need them (503).
type Deps struct {
	DB         Pinger
	Archive    Archive
	Watcher    Watcher
	Hub        *Hub
	AdminToken string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}
