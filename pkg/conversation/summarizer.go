package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/axongate/axon/pkg/models"
	"github.com/axongate/axon/pkg/provider"
	"github.com/axongate/axon/pkg/tenant"
)

// summarizeTimeout bounds one out-of-band summarization call.
const summarizeTimeout = 60 * time.Second

// summaryInstruction is the system prompt for the summarization call.
const summaryInstruction = "Summarize the following conversation concisely, " +
	"preserving facts, decisions, names, and open questions. " +
	"Respond with the summary only."

// Summarizer produces snapshot summaries by calling the resolved
// provider with the agent's conversation_summary_model. It runs off the
// critical path: the caller schedules it after the live response is
// flushed.
type Summarizer struct {
	manager  *Manager
	registry *provider.Registry
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(manager *Manager, registry *provider.Registry) *Summarizer {
	return &Summarizer{manager: manager, registry: registry}
}

// ShouldSnapshot reports whether the loaded context has crossed the
// agent's token limit.
func ShouldSnapshot(c *Context, tokenLimit int) bool {
	return c != nil && tokenLimit > 0 && c.TokenEstimate >= tokenLimit
}

// Summarize summarizes the current live messages and archives them
// under a new snapshot. Intended to be run in a background goroutine;
// every failure path just logs.
func (s *Summarizer) Summarize(ctx context.Context, tctx *tenant.Context, conversationID string, convo *Context) {
	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	summary, err := s.summarize(ctx, tctx, convo)
	if err != nil {
		slog.Warn("Conversation summarization failed, snapshot skipped",
			"conversation_id", conversationID, "error", err)
		return
	}

	snapshotID, err := s.manager.CreateSnapshot(ctx, tctx.TenantID, conversationID, summary, len(convo.Messages))
	if err != nil {
		slog.Warn("Snapshot creation failed",
			"conversation_id", conversationID, "error", err)
		return
	}
	slog.Info("Conversation snapshot created",
		"conversation_id", conversationID,
		"snapshot_id", snapshotID,
		"messages_archived", len(convo.Messages))
}

func (s *Summarizer) summarize(ctx context.Context, tctx *tenant.Context, convo *Context) (string, error) {
	model := tctx.Agent.ConversationSummaryModel
	if model == "" {
		return "", fmt.Errorf("no conversation_summary_model configured")
	}

	var transcript strings.Builder
	if convo.LatestSnapshotSummary != "" {
		transcript.WriteString("Previous summary:\n")
		transcript.WriteString(convo.LatestSnapshotSummary)
		transcript.WriteString("\n\n")
	}
	for _, msg := range convo.Messages {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteByte('\n')
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": model,
		"messages": []interface{}{
			models.SystemMessage(summaryInstruction),
			map[string]interface{}{"role": "user", "content": transcript.String()},
		},
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal summarization request: %w", err)
	}

	adapter := s.registry.ForConfig(tctx.Provider)
	resp, err := adapter.Proxy(ctx, &provider.Request{
		Method: http.MethodPost,
		Path:   "/v1/chat/completions",
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return "", err
	}
	if resp.IsStream {
		_ = resp.Stream.Close()
		return "", fmt.Errorf("summarization provider unexpectedly streamed")
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("summarization provider returned status %d", resp.StatusCode)
	}

	summary := models.AssistantContent(resp.JSON)
	if summary == "" {
		return "", fmt.Errorf("summarization response carried no content")
	}
	return summary, nil
}
