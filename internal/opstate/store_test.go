package opstate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	val, err := s.Get(context.Background(), "ns", "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q, want empty string for missing key", val)
	}
}

func TestSetUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "theme", "current", "light"); err != nil {
		t.Fatalf("Set(light) error: %v", err)
	}
	if err := s.Set(ctx, "theme", "current", "blue"); err != nil {
		t.Fatalf("Set(blue) error: %v", err)
	}

	val, err := s.Get(ctx, "theme", "current")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "blue" {
		t.Errorf("Get() = %q, want %q after upsert", val, "blue")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var missing map[string]bool
	found, err := s.GetJSON(ctx, "settings", "push", &missing)
	if err != nil || found {
		t.Fatalf("GetJSON(missing) = %v, %v; want false, nil", found, err)
	}

	want := map[string]bool{"browserPush": true, "mobilePush": false}
	if err := s.SetJSON(ctx, "settings", "push", want); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got map[string]bool
	found, err = s.GetJSON(ctx, "settings", "push", &got)
	if err != nil || !found {
		t.Fatalf("GetJSON = %v, %v; want true, nil", found, err)
	}
	if got["browserPush"] != true || got["mobilePush"] != false || len(got) != 2 {
		t.Errorf("GetJSON = %v, want %v", got, want)
	}
}

func TestGetJSON_Corrupt(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "settings", "email", "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v map[string]bool
	if _, err := s.GetJSON(ctx, "settings", "email", &v); err == nil {
		t.Error("GetJSON should fail on a corrupt value")
	}
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "ns", "key", "val"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Delete(ctx, "ns", "key"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete(ctx, "ns", "nope"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}

	val, err := s.Get(ctx, "ns", "key")
	if err != nil {
		t.Fatalf("Get() after delete error: %v", err)
	}
	if val != "" {
		t.Errorf("Get() = %q after delete, want empty", val)
	}
}

func TestListAndDeleteNamespace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, kv := range []struct{ ns, k, v string }{
		{"target", "a", "1"},
		{"target", "b", "2"},
		{"other", "c", "3"},
	} {
		if err := s.Set(ctx, kv.ns, kv.k, kv.v); err != nil {
			t.Fatalf("Set(%s/%s): %v", kv.ns, kv.k, err)
		}
	}

	result, err := s.List(ctx, "target")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(result) != 2 || result["a"] != "1" || result["b"] != "2" {
		t.Errorf("List() = %v, want {a:1, b:2}", result)
	}

	if err := s.DeleteNamespace(ctx, "target"); err != nil {
		t.Fatalf("DeleteNamespace: %v", err)
	}
	result, err = s.List(ctx, "target")
	if err != nil {
		t.Fatalf("List(target): %v", err)
	}
	if result == nil || len(result) != 0 {
		t.Errorf("List(target) = %v after delete, want empty non-nil map", result)
	}

	otherVal, err := s.Get(ctx, "other", "c")
	if err != nil {
		t.Fatalf("Get(other/c): %v", err)
	}
	if otherVal != "3" {
		t.Errorf("other/c = %q, want %q (should be untouched)", otherVal, "3")
	}
}

func TestStore_PersistAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist_test.db")
	ctx := context.Background()

	db1, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open(1): %v", err)
	}
	s1, err := NewStore(db1)
	if err != nil {
		t.Fatalf("NewStore(1): %v", err)
	}
	if err := s1.Set(ctx, "theme", "current", "teal"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	db1.Close()

	db2, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open(2): %v", err)
	}
	defer db2.Close()
	s2, err := NewStore(db2)
	if err != nil {
		t.Fatalf("NewStore(2): %v", err)
	}

	val, err := s2.Get(ctx, "theme", "current")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if val != "teal" {
		t.Errorf("Get() = %q after reopen, want %q", val, "teal")
	}
}
