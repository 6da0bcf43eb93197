package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/tenant"
)

func chatBody(msgs ...interface{}) models.Body {
	return models.Body{"model": "gpt-4o", "messages": msgs}
}

func userMsg(content string) map[string]interface{} {
	return map[string]interface{}{"role": "user", "content": content}
}

func systemMsg(content string) map[string]interface{} {
	return map[string]interface{}{"role": "system", "content": content}
}

func roles(body models.Body) []string {
	var out []string
	for _, m := range body.Messages() {
		msg := m.(map[string]interface{})
		out = append(out, msg["role"].(string))
	}
	return out
}

func TestApplyNoContext(t *testing.T) {
	body := chatBody(userMsg("hi"))
	assert.Equal(t, body, Apply(body, nil))
}

func TestApplyNothingConfigured(t *testing.T) {
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{Policies: tenant.DefaultMergePolicies()}

	out := Apply(body, tctx)
	// No prompt, no skills: the body passes through without copying.
	assert.Equal(t, body, out)
}

func TestApplySystemPromptPrepend(t *testing.T) {
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.DefaultMergePolicies(),
	}

	out := Apply(body, tctx)

	msgs := out.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, systemMsg("AGENT"), msgs[0])
	assert.Equal(t, userMsg("hi"), msgs[1])

	// Input body untouched.
	assert.Len(t, body.Messages(), 1)
}

func TestApplySystemPromptAppend(t *testing.T) {
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.MergePolicies{SystemPrompt: tenant.PolicyAppend},
	}

	out := Apply(body, tctx)
	msgs := out.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, systemMsg("AGENT"), msgs[1])
}

func TestApplySystemPromptOverwrite(t *testing.T) {
	// Existing system messages are removed; the agent prompt leads.
	body := chatBody(systemMsg("USER-SYS"), userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.MergePolicies{SystemPrompt: tenant.PolicyOverwrite},
	}

	out := Apply(body, tctx)
	msgs := out.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, systemMsg("AGENT"), msgs[0])
	assert.Equal(t, userMsg("hi"), msgs[1])
}

func TestApplySystemPromptIgnore(t *testing.T) {
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.MergePolicies{SystemPrompt: tenant.PolicyIgnore},
	}

	out := Apply(body, tctx)
	assert.Equal(t, []string{"user"}, roles(out))
}

func TestApplyOverwriteIdempotent(t *testing.T) {
	body := chatBody(systemMsg("USER-SYS"), userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.MergePolicies{SystemPrompt: tenant.PolicyOverwrite},
	}

	once := Apply(body, tctx)
	twice := Apply(once, tctx)
	assert.Equal(t, once, twice, "overwrite is idempotent")
}

func TestApplyPrependNotIdempotent(t *testing.T) {
	// Prepend injects a copy per application; callers apply exactly once.
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{
		SystemPrompt: "AGENT",
		Policies:     tenant.MergePolicies{SystemPrompt: tenant.PolicyPrepend},
	}

	once := Apply(body, tctx)
	twice := Apply(once, tctx)
	assert.Equal(t, []string{"system", "user"}, roles(once))
	assert.Equal(t, []string{"system", "system", "user"}, roles(twice))
}

func tool(name string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "function",
		"function": map[string]interface{}{"name": name},
	}
}

func TestApplySkillsMerge(t *testing.T) {
	body := chatBody(userMsg("hi"))
	body.SetTools([]interface{}{tool("search"), tool("weather")})

	customSearch := map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        "search",
			"description": "tenant-scoped search",
		},
	}
	tctx := &tenant.Context{
		Skills:   []map[string]interface{}{customSearch, tool("calc")},
		Policies: tenant.DefaultMergePolicies(),
	}

	out := Apply(body, tctx)

	tools := out.Tools()
	require.Len(t, tools, 3)
	// Agent tools lead; the agent's search shadows the request's.
	assert.Equal(t, customSearch, tools[0])
	assert.Equal(t, tool("calc"), tools[1])
	assert.Equal(t, tool("weather"), tools[2])
}

func TestApplySkillsOverwrite(t *testing.T) {
	body := chatBody(userMsg("hi"))
	body.SetTools([]interface{}{tool("weather")})

	tctx := &tenant.Context{
		Skills:   []map[string]interface{}{tool("calc")},
		Policies: tenant.MergePolicies{Skills: tenant.PolicyOverwrite},
	}

	out := Apply(body, tctx)
	tools := out.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, tool("calc"), tools[0])
}

func TestApplySkillsMergeIntoEmptyBody(t *testing.T) {
	body := chatBody(userMsg("hi"))
	tctx := &tenant.Context{
		Skills:   []map[string]interface{}{tool("calc")},
		Policies: tenant.DefaultMergePolicies(),
	}

	out := Apply(body, tctx)
	require.Len(t, out.Tools(), 1)
	_, hasTools := body["tools"]
	assert.False(t, hasTools, "input body untouched")
}
