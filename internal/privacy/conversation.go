package privacy

// Roles of conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationResult holds the anonymized turns and the number of PII spans removed.
type ConversationResult struct {
	Messages        []Message `json:"messages"`
	TotalPIIRemoved int       `json:"total_pii_removed"`
}

// AnonymizeConversation anonymizes user turns only. Assistant and system turns are
// copied unchanged.
func (a *Anonymizer) AnonymizeConversation(messages []Message) ConversationResult {
	out := ConversationResult{Messages: make([]Message, len(messages))}
	for i, m := range messages {
		if m.Role != RoleUser {
			out.Messages[i] = m
			continue
		}
		res := a.Anonymize(m.Content)
		out.Messages[i] = Message{Role: m.Role, Content: res.Content}
		out.TotalPIIRemoved += res.TotalReplacements
	}
	return out
}
