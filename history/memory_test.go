package history_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/effective-security/mcpagent/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_MemoryStore(t *testing.T) {
	ctx := context.Background()
	st := history.NewMemoryStore(0)

	n, err := st.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	turns, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	ord, err := st.Append(ctx, history.RoleUser, "Hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ord)
	ord, err = st.Append(ctx, history.RoleAssistant, "Hi")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ord)

	turns, err = st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, "Hello", turns[0].Text)

	require.NoError(t, st.Reset(ctx))
	n, err = st.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// ordinals do not restart after Reset
	ord, err = st.Append(ctx, history.RoleUser, "again")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ord)
}

func Test_MemoryStore_Retention(t *testing.T) {
	ctx := context.Background()
	st := history.NewMemoryStore(3)

	for i := 1; i <= 5; i++ {
		_, err := st.Append(ctx, history.RoleUser, fmt.Sprintf("turn %d", i))
		require.NoError(t, err)
	}

	turns, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "turn 3", turns[0].Text)
	assert.Equal(t, uint64(3), turns[0].Ordinal)
	assert.Equal(t, "turn 5", turns[2].Text)

	// Recent with a smaller limit returns the newest turns, oldest first
	turns, err = st.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "turn 4", turns[0].Text)
	assert.Equal(t, "turn 5", turns[1].Text)
}

func Test_FormatContext(t *testing.T) {
	assert.Empty(t, history.FormatContext(nil, 150))

	turns := []history.Turn{
		{Role: history.RoleUser, Text: "What time is it?", Ordinal: 1},
		{Role: history.RoleAssistant, Text: strings.Repeat("x", 200), Ordinal: 2},
	}
	out := history.FormatContext(turns, 150)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "User: What time is it?", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Assistant: "))
	assert.True(t, strings.HasSuffix(lines[1], "..."))
	assert.Equal(t, len("Assistant: ")+150+len("..."), len(lines[1]))
}
