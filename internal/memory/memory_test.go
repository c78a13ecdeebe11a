package memory

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aipolab/aipo/internal/core"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppend_AssignsMonotonicIndices(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	convID := uuid.NewString()

	idx0, err := s.Append(ctx, convID, core.RoleUser, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx0)

	idx1, err := s.Append(ctx, convID, core.RoleAssistant, "hi there")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx1)

	idx2, err := s.Append(ctx, convID, core.RoleUser, "follow up")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), idx2)
}

func TestList_ReturnsTurnsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	convID := uuid.NewString()

	_, err := s.Append(ctx, convID, core.RoleUser, "first")
	require.NoError(t, err)
	_, err = s.Append(ctx, convID, core.RoleAssistant, "second")
	require.NoError(t, err)

	turns, err := s.List(ctx, convID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	assert.Equal(t, uint32(0), turns[0].TurnIndex)
	assert.Equal(t, uint32(1), turns[1].TurnIndex)
}

func TestList_UnknownConversationErrors(t *testing.T) {
	s := openTestStore(t)
	_, err := s.List(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrConversationNotFound)
}

func TestListAll_ReturnsEveryConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := uuid.NewString(), uuid.NewString()

	_, err := s.Append(ctx, a, core.RoleUser, "a1")
	require.NoError(t, err)
	_, err = s.Append(ctx, b, core.RoleUser, "b1")
	require.NoError(t, err)

	convs, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
}

func TestBranch_CopiesPrefixAndLeavesTailEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	source := uuid.NewString()

	for _, content := range []string{"t0", "t1", "t2", "t3"} {
		_, err := s.Append(ctx, source, core.RoleUser, content)
		require.NoError(t, err)
	}

	branch := uuid.NewString()
	require.NoError(t, s.Branch(ctx, source, 1, branch))

	turns, err := s.List(ctx, branch)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "t0", turns[0].Content)
	assert.Equal(t, "t1", turns[1].Content)

	sourceTurns, err := s.List(ctx, source)
	require.NoError(t, err)
	require.Len(t, sourceTurns, 4)
}

func TestBranch_SourceRemainsAppendable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	source := uuid.NewString()

	_, err := s.Append(ctx, source, core.RoleUser, "t0")
	require.NoError(t, err)

	branch := uuid.NewString()
	require.NoError(t, s.Branch(ctx, source, 0, branch))

	idx, err := s.Append(ctx, source, core.RoleAssistant, "t1")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)
}

func TestAppend_SerializesConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	convID := uuid.NewString()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, convID, core.RoleUser, "concurrent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, err := s.List(ctx, convID)
	require.NoError(t, err)
	require.Len(t, turns, n)

	seen := make(map[uint32]bool, n)
	for _, turn := range turns {
		assert.Less(t, turn.TurnIndex, uint32(n), "turn index out of range")
		seen[turn.TurnIndex] = true
	}
	assert.Len(t, seen, n)
}
