package chat

// Role identifies who produced an utterance in the transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Sender identifies which side of the chat log a bubble is drawn on.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// TimeLayout is the wall-clock format stamped on utterances and bubbles.
const TimeLayout = "15:04"

// Utterance is one turn of dialogue sent to the generation service.
type Utterance struct {
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// ChatLogEntry is the display-only rendering of an utterance.
type ChatLogEntry struct {
	Sender  Sender `json:"sender"`
	Time    string `json:"time"`
	Message string `json:"message"`
}

// Entry derives the chat bubble for u. System utterances are not displayed.
func (u Utterance) Entry() (ChatLogEntry, bool) {
	var sender Sender
	switch u.Role {
	case RoleUser:
		sender = SenderUser
	case RoleAssistant:
		sender = SenderBot
	default:
		return ChatLogEntry{}, false
	}
	return ChatLogEntry{Sender: sender, Time: u.Timestamp, Message: u.Text}, true
}
