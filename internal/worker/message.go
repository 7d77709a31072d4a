package worker

// MessageType identifies a mailbox message.
type MessageType string

const (
	MsgProcessNow MessageType = "process-now"
	MsgManualSync MessageType = "manual-sync"
	MsgSync       MessageType = "sync"
)

// Message asks the worker to run a pass. Tag is set for MsgSync.
type Message struct {
	Type    MessageType `json:"type"`
	Tag     string      `json:"tag,omitempty"`
	Trigger string      `json:"trigger,omitempty"`
}

// Poster accepts mailbox messages. *Worker implements it.
type Poster interface {
	Post(msg Message) bool
}

// ProcessNow builds a direct process request.
func ProcessNow(trigger string) Message {
	return Message{Type: MsgProcessNow, Trigger: trigger}
}

// ManualSync builds a user-requested sync.
func ManualSync() Message {
	return Message{Type: MsgManualSync, Trigger: "manual"}
}

func (m Message) trigger() string {
	if m.Trigger != "" {
		return m.Trigger
	}
	switch m.Type {
	case MsgManualSync:
		return "manual"
	case MsgSync:
		return "background"
	default:
		return "direct"
	}
}
