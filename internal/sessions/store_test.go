package sessions

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreListBySchedule(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"s1", "s2", "s3"} {
		err := store.Upsert(ctx, Metadata{
			ID:         id,
			ScheduleID: "job-1",
			UpdatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Upsert(ctx, Metadata{ID: "other", ScheduleID: "job-2", UpdatedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListBySchedule(ctx, "job-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].ID != "s3" || got[1].ID != "s2" {
		t.Errorf("expected most recent first, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	meta := Metadata{
		ID:           "sess-1",
		ScheduleID:   "job-1",
		WorkingDir:   "/tmp",
		MessageCount: 4,
		InputTokens:  100,
		OutputTokens: 50,
		TotalTokens:  150,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.Upsert(ctx, meta); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Get(ctx, "sess-1")
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.MessageCount != 4 || got.TotalTokens != 150 || got.WorkingDir != "/tmp" {
		t.Errorf("unexpected metadata: %+v", got)
	}

	// Accumulate and overwrite.
	got.TotalTokens += 50
	if err := store.Upsert(ctx, got); err != nil {
		t.Fatal(err)
	}
	updated, _, _ := store.Get(ctx, "sess-1")
	if updated.TotalTokens != 200 {
		t.Errorf("TotalTokens = %d, want 200", updated.TotalTokens)
	}

	list, err := store.ListBySchedule(ctx, "job-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "sess-1" {
		t.Errorf("unexpected listing: %+v", list)
	}

	if _, ok, _ := store.Get(ctx, "missing"); ok {
		t.Error("expected missing session to report not found")
	}
}
