package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// eventNames maps hook subcommands to the host's event names.
var eventNames = map[string]string{
	"start":  "SessionStart",
	"submit": "UserPromptSubmit",
	"end":    "SessionEnd",
}

// Handler dispatches hook events to a jacq server. Hooks must never break the
// host: server problems are logged and the hook answers with empty context.
type Handler struct {
	Client *Client
	Owner  string // empty uses the server's default owner
	Out    io.Writer
	Log    *zap.Logger
}

// Handle reads an Event from stdin and dispatches on the event argument. Only
// an unknown event is an error.
func (h *Handler) Handle(ctx context.Context, event string, stdin io.Reader) error {
	var input Event
	// Stdin may be empty for some events
	if err := json.NewDecoder(stdin).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		h.logger().Warn("decode hook input", zap.String("event", event), zap.Error(err))
	}

	name, ok := eventNames[event]
	if !ok {
		return fmt.Errorf("unknown hook event: %s", event)
	}

	// Degrade gracefully if the server is down
	if !h.Client.Healthy(ctx) {
		h.logger().Info("jacq server unavailable", zap.String("event", name))
		if event == "end" {
			return nil
		}
		return WriteOutput(h.Out, name, "")
	}

	switch event {
	case "start":
		return h.handleStart(ctx, &input)
	case "submit":
		return h.handleSubmit(ctx, &input)
	default:
		h.handleEnd(ctx, &input)
		return nil
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
