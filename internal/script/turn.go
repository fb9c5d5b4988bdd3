package script

import "fmt"

// TargetKind selects what a reply target refers to.
type TargetKind int

const (
	// TargetSender threads beneath the latest message from a sender.
	TargetSender TargetKind = iota + 1
	// TargetTurn threads beneath the message produced by a specific turn.
	TargetTurn
)

// ReplyTarget is a turn's declared reply reference.
type ReplyTarget struct {
	Kind     TargetKind
	SenderID int
	Turn     int
}

// ReplyToSender builds a sender-keyed reply target.
func ReplyToSender(id int) *ReplyTarget {
	return &ReplyTarget{Kind: TargetSender, SenderID: id}
}

// ReplyToTurn builds a turn-keyed reply target.
func ReplyToTurn(index int) *ReplyTarget {
	return &ReplyTarget{Kind: TargetTurn, Turn: index}
}

func (t *ReplyTarget) String() string {
	if t == nil {
		return "none"
	}
	switch t.Kind {
	case TargetSender:
		return fmt.Sprintf("sender:%d", t.SenderID)
	case TargetTurn:
		return fmt.Sprintf("turn:%d", t.Turn)
	default:
		return "unknown"
	}
}

// Turn is one scripted message. Index is its position in the script.
type Turn struct {
	Index    int
	Text     string
	SenderID int
	ReplyTo  *ReplyTarget
}

// Script is the ordered conversation. Order is the send order.
type Script struct {
	Turns []Turn
}

// Len returns the number of turns.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Turns)
}
