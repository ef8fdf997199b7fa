package backup

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "backups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": openTestStore(t),
	}
}

func TestKey(t *testing.T) {
	require.Equal(t, "trademark_search_01HX", Key("01HX"))
	id, ok := SearchIDFromKey("trademark_search_01HX")
	require.True(t, ok)
	require.Equal(t, "01HX", id)
	_, ok = SearchIDFromKey("other_01HX")
	require.False(t, ok)
}

func TestStores(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, store.Save(ctx, Snapshot{SearchID: "x"}), ErrInvalidSnapshot)

			for i, id := range []string{"a", "b", "c"} {
				snap := Snapshot{
					SearchID:  id,
					FormData:  json.RawMessage(`{"markName":"` + id + `"}`),
					Timestamp: base.Add(time.Duration(i) * 500 * time.Millisecond),
				}
				require.NoError(t, store.Save(ctx, snap))
			}

			got, err := store.Get(ctx, "b")
			require.NoError(t, err)
			require.Equal(t, "b", got.SearchID)
			require.JSONEq(t, `{"markName":"b"}`, string(got.FormData))
			require.True(t, got.Timestamp.Equal(base.Add(500*time.Millisecond)))
			require.False(t, got.Delivered())

			list, err := store.List(ctx, ListOptions{})
			require.NoError(t, err)
			require.Equal(t, []string{"c", "b", "a"}, ids(list))

			require.NoError(t, store.MarkDelivered(ctx, "c", base.Add(time.Hour)))
			require.ErrorIs(t, store.MarkDelivered(ctx, "missing", base), ErrNotFound)

			list, err = store.List(ctx, ListOptions{UndeliveredOnly: true, Limit: 1})
			require.NoError(t, err)
			require.Equal(t, []string{"b"}, ids(list))

			got, err = store.Get(ctx, "c")
			require.NoError(t, err)
			require.True(t, got.Delivered())
			require.True(t, got.DeliveredAt.Equal(base.Add(time.Hour)))
		})
	}
}

func TestSnapshotDocumentShape(t *testing.T) {
	snap := Snapshot{
		SearchID:  "01J",
		FormData:  json.RawMessage(`{"step":3}`),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.JSONEq(t, `{"searchId":"01J","formData":{"step":3},"timestamp":"2026-01-02T03:04:05Z"}`, string(raw))
}

func ids(snaps []Snapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.SearchID)
	}
	return out
}
