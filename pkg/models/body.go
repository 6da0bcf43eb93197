// Package models contains shared wire-level types: the opaque JSON body
// handled by the proxy and the narrow typed views of the fields the
// gateway actually touches.
package models

import "encoding/json"

// Body is an opaque chat-completion request or response body. The
// gateway forwards it verbatim and only reads/writes the handful of
// fields the typed accessors below expose.
type Body map[string]interface{}

// Clone returns a deep copy of the body. Mutating helpers operate on
// copies so the original request body is never modified in place.
func (b Body) Clone() Body {
	if b == nil {
		return nil
	}
	out := make(Body, len(b))
	for k, v := range b {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, inner := range val {
			m[k] = deepCopyValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, inner := range val {
			s[i] = deepCopyValue(inner)
		}
		return s
	default:
		return val
	}
}

// Messages returns the messages array, or nil if absent or malformed.
func (b Body) Messages() []interface{} {
	msgs, _ := b["messages"].([]interface{})
	return msgs
}

// SetMessages replaces the messages array.
func (b Body) SetMessages(msgs []interface{}) {
	b["messages"] = msgs
}

// Tools returns the tools array, or nil if absent or malformed.
func (b Body) Tools() []interface{} {
	tools, _ := b["tools"].([]interface{})
	return tools
}

// SetTools replaces the tools array.
func (b Body) SetTools(tools []interface{}) {
	b["tools"] = tools
}

// Model returns the model field, or "" if absent.
func (b Body) Model() string {
	m, _ := b["model"].(string)
	return m
}

// Stream reports whether the body requests a streaming response.
func (b Body) Stream() bool {
	s, _ := b["stream"].(bool)
	return s
}

// Usage returns the usage object, or nil if absent.
func (b Body) Usage() map[string]interface{} {
	u, _ := b["usage"].(map[string]interface{})
	return u
}

// FirstChoiceMessage returns choices[0].message, or nil.
func (b Body) FirstChoiceMessage() map[string]interface{} {
	choices, _ := b["choices"].([]interface{})
	if len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]interface{})
	if choice == nil {
		return nil
	}
	msg, _ := choice["message"].(map[string]interface{})
	return msg
}

// FirstChoiceDeltaContent returns choices[0].delta.content, or "".
func (b Body) FirstChoiceDeltaContent() string {
	choices, _ := b["choices"].([]interface{})
	if len(choices) == 0 {
		return ""
	}
	choice, _ := choices[0].(map[string]interface{})
	if choice == nil {
		return ""
	}
	delta, _ := choice["delta"].(map[string]interface{})
	if delta == nil {
		return ""
	}
	content, _ := delta["content"].(string)
	return content
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Raw       map[string]interface{}
}

// ToolCalls extracts choices[0].message.tool_calls, or nil if the
// response carries none.
func (b Body) ToolCalls() []ToolCall {
	msg := b.FirstChoiceMessage()
	if msg == nil {
		return nil
	}
	rawCalls, _ := msg["tool_calls"].([]interface{})
	if len(rawCalls) == 0 {
		return nil
	}
	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		call, _ := rc.(map[string]interface{})
		if call == nil {
			continue
		}
		tc := ToolCall{Raw: call}
		tc.ID, _ = call["id"].(string)
		if fn, _ := call["function"].(map[string]interface{}); fn != nil {
			tc.Name, _ = fn["name"].(string)
			switch args := fn["arguments"].(type) {
			case string:
				tc.Arguments = args
			case map[string]interface{}:
				// Some providers inline arguments as an object.
				if encoded, err := json.Marshal(args); err == nil {
					tc.Arguments = string(encoded)
				}
			}
		}
		calls = append(calls, tc)
	}
	return calls
}

// ToolName returns the dedup key of an OpenAI-style tool definition:
// function.name when present, falling back to a top-level name.
func ToolName(tool interface{}) string {
	m, _ := tool.(map[string]interface{})
	if m == nil {
		return ""
	}
	if fn, _ := m["function"].(map[string]interface{}); fn != nil {
		if name, _ := fn["name"].(string); name != "" {
			return name
		}
	}
	name, _ := m["name"].(string)
	return name
}

// SystemMessage builds a {role: system} message.
func SystemMessage(content string) map[string]interface{} {
	return map[string]interface{}{"role": "system", "content": content}
}
