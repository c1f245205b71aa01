package n8n

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "registrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSaveAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	reg := &Registration{
		WorkflowID: "wf-1",
		WebhookURL: "https://n8n.example.com/webhook/abc",
		Events:     []string{"task.created", "task.updated"},
	}
	require.NoError(t, store.Save(ctx, reg))
	require.NotEmpty(t, reg.ID)
	require.False(t, reg.CreatedAt.IsZero())

	got, err := store.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, reg.WorkflowID, got.WorkflowID)
	require.Equal(t, reg.WebhookURL, got.WebhookURL)
	require.Equal(t, reg.Events, got.Events)
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreListNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	old := &Registration{WorkflowID: "wf-old", WebhookURL: "https://a", Events: []string{"x"}, CreatedAt: time.Now().Add(-time.Hour)}
	recent := &Registration{WorkflowID: "wf-new", WebhookURL: "https://b", Events: []string{"y"}, CreatedAt: time.Now()}
	require.NoError(t, store.Save(ctx, old))
	require.NoError(t, store.Save(ctx, recent))

	regs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, "wf-new", regs[0].WorkflowID)
	require.Equal(t, "wf-old", regs[1].WorkflowID)
}

func TestStoreSaveReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	reg := &Registration{WorkflowID: "wf-1", WebhookURL: "https://a", Events: []string{"x"}}
	require.NoError(t, store.Save(ctx, reg))

	reg.WebhookURL = "https://b"
	require.NoError(t, store.Save(ctx, reg))

	regs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, "https://b", regs[0].WebhookURL)
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	reg := &Registration{WorkflowID: "wf-1", WebhookURL: "https://a", Events: []string{"x"}}
	require.NoError(t, store.Save(ctx, reg))

	existed, err := store.Delete(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = store.Delete(ctx, reg.ID)
	require.NoError(t, err)
	require.False(t, existed)
}
