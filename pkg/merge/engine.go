// Package merge applies the agent's resolved configuration to an
// outgoing chat-completion body according to the agent's merge policies.
package merge

import (
	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/tenant"
)

// Apply composes the resolved system prompt and tools into the request
// body. The input body is never mutated; the returned body is a copy
// when any policy fires, or the input unchanged when nothing applies.
//
// mcp_endpoints are deliberately not injected into the provider body:
// they stay on the context and drive the MCP round-trip instead.
func Apply(body models.Body, tctx *tenant.Context) models.Body {
	if tctx == nil {
		return body
	}

	applyPrompt := tctx.SystemPrompt != "" && tctx.Policies.SystemPrompt != tenant.PolicyIgnore
	applyTools := len(tctx.Skills) > 0 && tctx.Policies.Skills != tenant.PolicyIgnore
	if !applyPrompt && !applyTools {
		return body
	}

	out := body.Clone()
	if applyPrompt {
		applySystemPrompt(out, tctx)
	}
	if applyTools {
		applySkills(out, tctx)
	}
	return out
}

func applySystemPrompt(body models.Body, tctx *tenant.Context) {
	msgs := body.Messages()
	injected := models.SystemMessage(tctx.SystemPrompt)

	switch tctx.Policies.SystemPrompt {
	case tenant.PolicyAppend:
		body.SetMessages(append(msgs, injected))
	case tenant.PolicyOverwrite:
		kept := make([]interface{}, 0, len(msgs)+1)
		kept = append(kept, injected)
		for _, m := range msgs {
			if msg, _ := m.(map[string]interface{}); msg != nil {
				if role, _ := msg["role"].(string); role == "system" {
					continue
				}
			}
			kept = append(kept, m)
		}
		body.SetMessages(kept)
	default: // prepend
		body.SetMessages(append([]interface{}{injected}, msgs...))
	}
}

func applySkills(body models.Body, tctx *tenant.Context) {
	agentTools := make([]interface{}, 0, len(tctx.Skills))
	for _, s := range tctx.Skills {
		agentTools = append(agentTools, map[string]interface{}(s))
	}

	switch tctx.Policies.Skills {
	case tenant.PolicyOverwrite:
		body.SetTools(agentTools)
	default: // merge: agent tools first, request tools fill in unseen names
		seen := make(map[string]bool, len(agentTools))
		merged := make([]interface{}, 0, len(agentTools)+len(body.Tools()))
		for _, t := range agentTools {
			if name := models.ToolName(t); name != "" {
				seen[name] = true
			}
			merged = append(merged, t)
		}
		for _, t := range body.Tools() {
			if name := models.ToolName(t); name != "" && seen[name] {
				continue
			}
			merged = append(merged, t)
		}
		body.SetTools(merged)
	}
}
