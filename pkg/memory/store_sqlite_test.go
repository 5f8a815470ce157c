package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "alice", KindSTM); err != nil || found {
		t.Fatalf("Get on empty store = found %v, err %v", found, err)
	}

	if err := store.Upsert(ctx, "alice", KindSTM, []byte(`{"count":1}`)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	payload, found, err := store.Get(ctx, "alice", KindSTM)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || string(payload) != `{"count":1}` {
		t.Fatalf("Get = %q, found %v", payload, found)
	}
}

func TestSQLiteStoreUpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "alice", KindLTM, []byte(`{"v":1}`)); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	if err := store.Upsert(ctx, "alice", KindLTM, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	payload, _, err := store.Get(ctx, "alice", KindLTM)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(payload) != `{"v":2}` {
		t.Fatalf("last write should win, got %q", payload)
	}
}

func TestSQLiteStoreKindsAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "alice", KindSTM, []byte(`{"tier":"stm"}`)); err != nil {
		t.Fatalf("Upsert stm: %v", err)
	}
	if err := store.Upsert(ctx, "alice", KindLTM, []byte(`{"tier":"ltm"}`)); err != nil {
		t.Fatalf("Upsert ltm: %v", err)
	}

	stm, _, _ := store.Get(ctx, "alice", KindSTM)
	ltm, _, _ := store.Get(ctx, "alice", KindLTM)
	if string(stm) != `{"tier":"stm"}` || string(ltm) != `{"tier":"ltm"}` {
		t.Fatalf("kinds collided: stm=%q ltm=%q", stm, ltm)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if removed, err := store.Delete(ctx, "alice", KindSTM); err != nil || removed {
		t.Fatalf("Delete missing doc = %v, err %v", removed, err)
	}

	if err := store.Upsert(ctx, "alice", KindSTM, []byte(`{}`)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	removed, err := store.Delete(ctx, "alice", KindSTM)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !removed {
		t.Fatal("Delete existing doc should report removal")
	}
	if _, found, _ := store.Get(ctx, "alice", KindSTM); found {
		t.Fatal("doc still present after Delete")
	}
}

func TestSQLiteStoreListUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, user := range []string{"carol", "alice", "bob"} {
		if err := store.Upsert(ctx, user, KindSTM, []byte(`{}`)); err != nil {
			t.Fatalf("Upsert %s: %v", user, err)
		}
	}
	// Second kind for an existing user must not duplicate them.
	if err := store.Upsert(ctx, "alice", KindLTM, []byte(`{}`)); err != nil {
		t.Fatalf("Upsert alice ltm: %v", err)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(users) != len(want) {
		t.Fatalf("ListUsers = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Fatalf("ListUsers = %v, want %v", users, want)
		}
	}
}
