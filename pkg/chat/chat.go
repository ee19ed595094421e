package chat

const (
	RoleUser      = "user"
	RoleAssistant = "assistant" // the GM
	RoleSystem    = "system"
)

// Message is a single entry in a session's conversation history.
// The role/content shape is what every LLM provider API accepts.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Trim drops the oldest entries so that at most max remain.
func Trim(history []Message, max int) []Message {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
