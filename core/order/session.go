package order

// Stage identifies the step a conversation is in.
type Stage string

const (
	// StageNone means there is no session for the conversation.
	StageNone Stage = "none"
	// StageAwaitingName waits for the customer's name.
	StageAwaitingName Stage = "awaiting_name"
	// StageAwaitingPhone waits for a valid phone number.
	StageAwaitingPhone Stage = "awaiting_phone"
	// StageAwaitingComment waits for the free-form order comment.
	StageAwaitingComment Stage = "awaiting_comment"
	// StageCompleted marks a captured order.
	StageCompleted Stage = "completed"
	// StageCancelled marks a conversation dropped by the customer.
	StageCancelled Stage = "cancelled"
)

// Terminal reports whether no further input is accepted in the stage.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// Session is the state of one conversation. Each variant carries exactly
// the fields collected so far.
type Session interface {
	Stage() Stage
	isSession()
}

// AwaitingName is the first step after /start.
type AwaitingName struct{}

// AwaitingPhone holds the captured name.
type AwaitingPhone struct {
	Name string
}

// AwaitingComment holds the captured name and validated phone.
type AwaitingComment struct {
	Name  string
	Phone string
}

// Completed holds the full order.
type Completed struct {
	Order Order
}

// Cancelled carries nothing; the partial form is discarded.
type Cancelled struct{}

func (AwaitingName) Stage() Stage    { return StageAwaitingName }
func (AwaitingPhone) Stage() Stage   { return StageAwaitingPhone }
func (AwaitingComment) Stage() Stage { return StageAwaitingComment }
func (Completed) Stage() Stage       { return StageCompleted }
func (Cancelled) Stage() Stage       { return StageCancelled }

func (AwaitingName) isSession()    {}
func (AwaitingPhone) isSession()   {}
func (AwaitingComment) isSession() {}
func (Completed) isSession()       {}
func (Cancelled) isSession()       {}

// StageOf returns the stage of s, or StageNone for a nil session.
func StageOf(s Session) Stage {
	if s == nil {
		return StageNone
	}
	return s.Stage()
}

// Order is the captured form. Fields hold raw user input.
type Order struct {
	Name    string
	Phone   string
	Comment string
}

// FormOf returns the fields collected so far in s.
func FormOf(s Session) Order {
	switch v := s.(type) {
	case AwaitingPhone:
		return Order{Name: v.Name}
	case AwaitingComment:
		return Order{Name: v.Name, Phone: v.Phone}
	case Completed:
		return v.Order
	}
	return Order{}
}
