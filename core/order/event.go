package order

import "time"

// Key identifies a conversation: one user in one chat. In a group every
// member fills their own form.
type Key struct {
	ChatID int64
	UserID int64
}

// EventKind enumerates the inputs the conversation understands.
type EventKind string

const (
	// EventStart begins (or restarts) a conversation.
	EventStart EventKind = "start"
	// EventText carries a plain text answer.
	EventText EventKind = "text"
	// EventCancel drops the conversation in progress.
	EventCancel EventKind = "cancel"
)

// Event is one decoded inbound unit of work.
type Event struct {
	Key        Key
	Kind       EventKind
	Text       string
	UpdateID   int
	ReceivedAt time.Time
}

// Keyboard is a hint for the reply markup that accompanies a reply.
type Keyboard string

const (
	// KeyboardNone leaves the client keyboard untouched.
	KeyboardNone Keyboard = ""
	// KeyboardRemove hides any custom keyboard.
	KeyboardRemove Keyboard = "remove"
	// KeyboardSkipComment offers a one-tap "no comment" answer.
	KeyboardSkipComment Keyboard = "skip_comment"
)

// Reply is a message to the conversation that produced the event.
type Reply struct {
	Text     string
	Keyboard Keyboard
}

// Notification is the rendered order for the fixed recipient.
type Notification struct {
	Order Order
	Text  string
}

// Effects lists what a transition asks the caller to do.
// Notify runs before Reply; when Notify fails permanently, Fallback is sent
// instead of Reply.
type Effects struct {
	Notify   *Notification
	Reply    *Reply
	Fallback *Reply
}

// Empty reports whether there is nothing to execute.
func (e Effects) Empty() bool {
	return e.Notify == nil && e.Reply == nil
}
