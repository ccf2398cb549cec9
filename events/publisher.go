// Package events publishes live chat events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/onnwee/livechat-tender/livechat"
)

// Event kinds used as the last subject token.
const (
	KindStarted = "started"
	KindComment = "comment"
	KindEnded   = "ended"
	KindFailed  = "failed"
)

// Message is the JSON payload published for every event.
type Message struct {
	Kind        string            `json:"kind"`
	BroadcastID string            `json:"broadcast_id"`
	Time        time.Time         `json:"time"`
	Comment     *livechat.Comment `json:"comment,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// NewMessage converts ev into its wire form.
func NewMessage(broadcastID string, ev livechat.Event, now time.Time) (Message, error) {
	m := Message{BroadcastID: broadcastID, Time: now.UTC()}
	switch e := ev.(type) {
	case livechat.Started:
		m.Kind = KindStarted
		if e.BroadcastID != "" {
			m.BroadcastID = e.BroadcastID
		}
	case livechat.CommentEvent:
		m.Kind = KindComment
		c := e.Comment
		m.Comment = &c
	case livechat.Ended:
		m.Kind = KindEnded
		m.Reason = e.Reason
	case livechat.Failed:
		m.Kind = KindFailed
		if e.Err != nil {
			m.Error = e.Err.Error()
		}
	default:
		return Message{}, fmt.Errorf("unknown event %T", ev)
	}
	return m, nil
}

// Subject builds "<prefix>.<broadcastID>.<kind>". Characters with meaning in
// NATS subjects are replaced in the broadcast id.
func Subject(prefix, broadcastID, kind string) string {
	id := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, broadcastID)
	if id == "" {
		id = "_"
	}
	return prefix + "." + id + "." + kind
}

// Publisher sends events to NATS.
type Publisher struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher connects to url. The connection retries in the background, so
// a broker that is down at startup does not fail the service.
func NewPublisher(url, token, prefix string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats"))
	if prefix == "" {
		prefix = "livechat"
	}
	opts := []nats.Option{
		nats.Name("livechat-tender"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, prefix: prefix, logger: logger, now: time.Now}, nil
}

// Publish sends ev for broadcastID. ctx is checked before the (non-blocking) publish.
func (p *Publisher) Publish(ctx context.Context, broadcastID string, ev livechat.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := NewMessage(broadcastID, ev, p.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	subject := Subject(p.prefix, m.BroadcastID, m.Kind)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers decoded messages matching subject (wildcards allowed).
func (p *Publisher) Subscribe(subject string, handler func(subject string, m Message)) error {
	sub, err := p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var m Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			p.logger.Warn("dropping undecodable message", slog.String("subject", msg.Subject), slog.Any("error", err))
			return
		}
		handler(msg.Subject, m)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	p.subs = append(p.subs, sub)
	p.logger.Info("subscribed", slog.String("subject", subject))
	return nil
}

// Flush waits for the server to acknowledge buffered publishes.
func (p *Publisher) Flush(timeout time.Duration) error {
	return p.conn.FlushTimeout(timeout)
}

// Close drains subscriptions and closes the connection.
func (p *Publisher) Close() {
	for _, sub := range p.subs {
		_ = sub.Unsubscribe()
	}
	p.conn.Close()
}
