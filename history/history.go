// Package history keeps the conversation turns the agent exchanges with
// the user and builds the bounded context window sent to the LLM.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/effective-security/mcpagent/pkg/llmutils"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "history")

// Role of one conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single utterance in the conversation. Ordinals increase
// strictly with every append and survive eviction of older turns.
type Turn struct {
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Ordinal uint64 `json:"ordinal"`
}

// Store is the conversation backend.
type Store interface {
	// Append records a turn and returns its ordinal.
	Append(ctx context.Context, role Role, text string) (uint64, error)
	// Recent returns up to limit most recent turns, oldest first.
	Recent(ctx context.Context, limit int) ([]Turn, error)
	// Len returns the number of retained turns.
	Len(ctx context.Context) (int, error)
	// Reset discards all turns. Ordinals keep increasing afterwards.
	Reset(ctx context.Context) error
}

// FormatContext renders turns into the prompt context block. Each turn is
// truncated to displayLength runes so one verbose answer cannot crowd out
// the rest of the window.
func FormatContext(turns []Turn, displayLength int) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, t := range turns {
		label := "User"
		if t.Role == RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, llmutils.Truncate(t.Text, displayLength))
	}
	return b.String()
}
