// Package chat contains the live chat recorder and its manager.
//
// A Recorder watches one target (a channel or a single live video). It
// attaches a livechat.LiveChat, and while the broadcast is live every event is
// fanned out to the configured sinks:
//   - Store: sessions and comments are archived in Postgres.
//   - Publisher: every event is published to NATS.
//   - Broadcaster: comments are pushed to SSE subscribers.
//
// When the broadcast is offline, or once it ends, the recorder waits
// RetryInterval and attaches again, so a channel target follows the channel
// across broadcasts. Sink failures are logged and counted but never stop the
// session.
package chat
