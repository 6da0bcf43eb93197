package models

// Gateway-specific extensions accepted on /v1/chat/completions. Both
// are consumed by the conversation manager and stripped before the body
// is proxied upstream.
const (
	ConversationIDField = "conversation_id"
	PartitionIDField    = "partition_id"
)

// ConversationRef holds the conversation addressing fields extracted
// from an inbound chat-completion body.
type ConversationRef struct {
	ConversationID string
	PartitionID    string
}

// ExtractConversationRef pulls the gateway extension fields out of the
// body and removes them, returning the stripped body (a copy) and the
// extracted reference.
func ExtractConversationRef(body Body) (Body, ConversationRef) {
	var ref ConversationRef
	ref.ConversationID, _ = body[ConversationIDField].(string)
	ref.PartitionID, _ = body[PartitionIDField].(string)
	if ref.ConversationID == "" && ref.PartitionID == "" {
		return body, ref
	}
	stripped := body.Clone()
	delete(stripped, ConversationIDField)
	delete(stripped, PartitionIDField)
	return stripped, ref
}

// LastUserContent returns the content of the last {role: user} message
// in the body, or "" if there is none. Used when persisting the user
// side of a conversation turn.
func LastUserContent(body Body) string {
	msgs := body.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		msg, _ := msgs[i].(map[string]interface{})
		if msg == nil {
			continue
		}
		if role, _ := msg["role"].(string); role != "user" {
			continue
		}
		content, _ := msg["content"].(string)
		return content
	}
	return ""
}

// AssistantContent returns choices[0].message.content from a response
// body, or "" if absent.
func AssistantContent(body Body) string {
	msg := body.FirstChoiceMessage()
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return content
}
