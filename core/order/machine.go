package order

import "strings"

// Outcome summarizes what a transition did.
type Outcome string

const (
	OutcomeStarted      Outcome = "started"
	OutcomeAdvanced     Outcome = "advanced"
	OutcomeInvalidPhone Outcome = "invalid_phone"
	OutcomeCompleted    Outcome = "completed"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeIgnored      Outcome = "ignored"
)

// Result is the output of Transition.
//
// Next is the session to keep for the key. A nil or terminal Next means the
// key must not hold a session afterwards. When Outcome is OutcomeIgnored the
// caller leaves the store untouched.
type Result struct {
	Next    Session
	Effects Effects
	Outcome Outcome
}

// Transition applies ev to current (nil when the key has no session).
// It is pure: the same inputs always produce the same Result.
func Transition(current Session, ev Event, texts Texts) Result {
	switch ev.Kind {
	case EventStart:
		// Restart semantics: whatever was in progress is dropped.
		return Result{
			Next:    AwaitingName{},
			Effects: replyWith(texts.Welcome, KeyboardRemove),
			Outcome: OutcomeStarted,
		}
	case EventCancel:
		if current == nil || current.Stage().Terminal() {
			return ignored(current)
		}
		return Result{
			Next:    Cancelled{},
			Effects: replyWith(texts.Cancelled, KeyboardRemove),
			Outcome: OutcomeCancelled,
		}
	case EventText:
		return onText(current, strings.TrimSpace(ev.Text), texts)
	}
	return ignored(current)
}

func onText(current Session, text string, texts Texts) Result {
	switch s := current.(type) {
	case AwaitingName:
		return Result{
			Next:    AwaitingPhone{Name: text},
			Effects: replyWith(texts.AskPhone, KeyboardNone),
			Outcome: OutcomeAdvanced,
		}
	case AwaitingPhone:
		if !ValidPhone(text) {
			return Result{
				Next:    s,
				Effects: replyWith(texts.InvalidPhone, KeyboardNone),
				Outcome: OutcomeInvalidPhone,
			}
		}
		return Result{
			Next:    AwaitingComment{Name: s.Name, Phone: text},
			Effects: replyWith(texts.AskComment, KeyboardSkipComment),
			Outcome: OutcomeAdvanced,
		}
	case AwaitingComment:
		o := Order{Name: s.Name, Phone: s.Phone, Comment: text}
		return Result{
			Next: Completed{Order: o},
			Effects: Effects{
				Notify:   &Notification{Order: o, Text: RenderOrder(o, texts)},
				Reply:    &Reply{Text: texts.Confirmation, Keyboard: KeyboardRemove},
				Fallback: &Reply{Text: texts.Apology, Keyboard: KeyboardRemove},
			},
			Outcome: OutcomeCompleted,
		}
	}
	return ignored(current)
}

func replyWith(text string, kb Keyboard) Effects {
	return Effects{Reply: &Reply{Text: text, Keyboard: kb}}
}

func ignored(current Session) Result {
	return Result{Next: current, Outcome: OutcomeIgnored}
}
