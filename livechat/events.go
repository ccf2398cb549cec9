package livechat

// Event is one of Started, CommentEvent, Ended or Failed.
type Event interface {
	isEvent()
}

// Started is emitted once polling begins.
type Started struct {
	BroadcastID string
}

// CommentEvent carries one newly posted comment.
type CommentEvent struct {
	Comment Comment
}

// Ended is emitted once when a running session stops. Reason may be empty.
type Ended struct {
	Reason string
}

// Failed reports a recoverable error.
type Failed struct {
	Err error
}

func (Started) isEvent()      {}
func (CommentEvent) isEvent() {}
func (Ended) isEvent()        {}
func (Failed) isEvent()       {}

// Listener receives events synchronously, in emission order.
type Listener func(Event)
