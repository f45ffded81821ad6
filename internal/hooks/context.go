package hooks

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// handleStart injects what jacq knows about the project in the working
// directory.
func (h *Handler) handleStart(ctx context.Context, input *Event) error {
	return WriteOutput(h.Out, "SessionStart", h.fetchContext(ctx, input.Project()))
}

// handleSubmit injects the memory context for the user's prompt.
func (h *Handler) handleSubmit(ctx context.Context, input *Event) error {
	return WriteOutput(h.Out, "UserPromptSubmit", h.fetchContext(ctx, input.Prompt))
}

// fetchContext returns the narrative for query, or "" when there is nothing
// to ask or the server cannot answer.
func (h *Handler) fetchContext(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	params := url.Values{"q": {query}}
	if h.Owner != "" {
		params.Set("owner", h.Owner)
	}

	data, err := h.Client.Get(ctx, "/api/context?"+params.Encode())
	if err != nil {
		h.logger().Warn("fetch context", zap.Error(err))
		return ""
	}
	var resp struct {
		Context string `json:"context"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		h.logger().Warn("decode context", zap.Error(err))
		return ""
	}
	return resp.Context
}

// handleEnd records the session on the owner's timeline.
func (h *Handler) handleEnd(ctx context.Context, input *Event) {
	topics := input.Topics
	if p := input.Project(); p != "" && !contains(topics, p) {
		topics = append(topics, p)
	}
	body, err := json.Marshal(map[string]any{
		"owner_id": h.Owner,
		"topics":   topics,
	})
	if err != nil {
		h.logger().Warn("encode interaction", zap.Error(err))
		return
	}
	if _, err := h.Client.Post(ctx, "/api/interactions", body); err != nil {
		h.logger().Warn("record interaction", zap.String("session", input.SessionID), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
