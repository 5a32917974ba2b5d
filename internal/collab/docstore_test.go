package collab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentStoreCreateOnFirstWrite(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewDocumentStore()

	doc, conflict := store.Write("doc-1", 0, "hello", "Notes", "", "coach-1", now)
	require.Nil(t, conflict)
	require.Equal(t, uint64(1), doc.Version)
	require.Equal(t, "hello", doc.Content)
	require.Equal(t, "Notes", doc.Title)
	require.Equal(t, "text", doc.ContentType)
	require.Equal(t, "coach-1", doc.LastEditedBy)
	require.Equal(t, 1, store.Len())
}

func TestDocumentStoreUnknownDocumentWithNonZeroVersionConflicts(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewDocumentStore()

	_, conflict := store.Write("missing", 3, "content", "", "", "user-1", now)
	require.NotNil(t, conflict)
	require.Equal(t, "missing", conflict.DocumentID)
	require.Zero(t, conflict.CurrentVersion)
	require.Zero(t, store.Len())
}

func TestDocumentStoreVersionMismatchReturnsAuthoritativeState(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewDocumentStore()

	first, conflict := store.Write("doc-1", 0, "v1", "Plan", "markdown", "coach-1", now)
	require.Nil(t, conflict)

	// A concurrent writer based on version 0 loses the race.
	_, conflict = store.Write("doc-1", 0, "stale", "", "", "client-2", now.Add(time.Second))
	require.NotNil(t, conflict)
	require.Equal(t, first.Version, conflict.CurrentVersion)
	require.Equal(t, "v1", conflict.CurrentContent)

	// The stored content is untouched by the failed write.
	current, ok := store.Get("doc-1")
	require.True(t, ok)
	require.Equal(t, "v1", current.Content)
	require.Equal(t, uint64(1), current.Version)

	// Rebasing on the conflict payload succeeds.
	updated, conflict := store.Write("doc-1", conflict.CurrentVersion, "v2", "", "", "client-2", now.Add(2*time.Second))
	require.Nil(t, conflict)
	require.Equal(t, uint64(2), updated.Version)
	require.Equal(t, "v2", updated.Content)
	require.Equal(t, "client-2", updated.LastEditedBy)
}

func TestDocumentStoreLoadDoesNotBumpVersion(t *testing.T) {
	store := NewDocumentStore()
	store.Load(DocumentState{ID: "doc-9", Title: "Recovered", Content: "body", Version: 7})

	doc, ok := store.Get("doc-9")
	require.True(t, ok)
	require.Equal(t, uint64(7), doc.Version)

	// Writes resume from the persisted version.
	_, conflict := store.Write("doc-9", 6, "stale", "", "", "user", time.Now())
	require.NotNil(t, conflict)

	updated, conflict := store.Write("doc-9", 7, "fresh", "", "", "user", time.Now())
	require.Nil(t, conflict)
	require.Equal(t, uint64(8), updated.Version)
}

func TestDocumentStoreListOrdersByTitle(t *testing.T) {
	store := NewDocumentStore()
	store.Load(DocumentState{ID: "b", Title: "Zeta"})
	store.Load(DocumentState{ID: "a", Title: "Alpha"})
	store.Load(DocumentState{ID: "c", Title: "Alpha"})

	list := store.List()
	require.Len(t, list, 3)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "c", list[1].ID)
	require.Equal(t, "b", list[2].ID)
}
