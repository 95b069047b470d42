package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dealalert/internal/model"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateRecipient(t *testing.T, s *SQLite, address string) int64 {
	t.Helper()
	r := model.Recipient{Address: address}
	if err := s.CreateRecipient(context.Background(), &r); err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	return r.ID
}

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	item := model.Item{
		Title:       "Wireless earbuds",
		Description: "noise cancelling",
		Category:    "electronics",
		CreatedAt:   time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	if err := s.CreateItem(ctx, &item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be populated")
	}

	got, err := s.GetItems(ctx, []int64{item.ID, 9999})
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	if diff := cmp.Diff(map[int64]model.Item{item.ID: item}, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestRuleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rid := mustCreateRecipient(t, s, "user@example.com")

	rule := model.AlertRule{RecipientID: rid, Kind: model.KindKeyword, Value: "phone"}
	if err := s.CreateRule(ctx, &rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rules, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if diff := cmp.Diff(rule, rules[0]); diff != "" {
		t.Errorf("rule mismatch (-want +got):\n%s", diff)
	}

	if err := s.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	rules, err = s.ListRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected no rules after delete, got %d", len(rules))
	}
}

func TestUpsertPreference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	rid := mustCreateRecipient(t, s, "user@example.com")

	p := model.DeliveryPreference{RecipientID: rid, ImmediateEnabled: true}
	if err := s.UpsertPreference(ctx, &p); err != nil {
		t.Fatalf("upsert preference: %v", err)
	}

	p.ImmediateEnabled = false
	p.DigestEnabled = true
	if err := s.UpsertPreference(ctx, &p); err != nil {
		t.Fatalf("upsert preference again: %v", err)
	}

	prefs, err := s.GetPreferences(ctx, []int64{rid})
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if diff := cmp.Diff(map[int64]model.DeliveryPreference{rid: p}, prefs); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestGetPreferencesMissingRecipient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	prefs, err := s.GetPreferences(ctx, []int64{42})
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 0 {
		t.Errorf("expected no preference records, got %d", len(prefs))
	}
}

func TestPendingDigestFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	digestOn := mustCreateRecipient(t, s, "on@example.com")
	digestOff := mustCreateRecipient(t, s, "off@example.com")
	noPref := mustCreateRecipient(t, s, "nopref@example.com")

	for _, p := range []model.DeliveryPreference{
		{RecipientID: digestOn, DigestEnabled: true},
		{RecipientID: digestOff, DigestEnabled: false},
	} {
		if err := s.UpsertPreference(ctx, &p); err != nil {
			t.Fatalf("upsert preference: %v", err)
		}
	}

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		{RecipientID: digestOn, ItemID: 1, CreatedAt: base},
		{RecipientID: digestOn, ItemID: 2, CreatedAt: base.Add(90 * time.Minute)},
		{RecipientID: digestOff, ItemID: 1, CreatedAt: base},
		{RecipientID: noPref, ItemID: 1, CreatedAt: base},
		{RecipientID: digestOn, ItemID: 3, CreatedAt: base.Add(4 * time.Hour)}, // 13:00, after cutoff
	}
	if err := s.EnqueueEntries(ctx, entries); err != nil {
		t.Fatalf("enqueue entries: %v", err)
	}

	cutoff := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	pending, err := s.ListPendingDigest(ctx, cutoff)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}

	var got [][2]int64
	for _, e := range pending {
		got = append(got, [2]int64{e.RecipientID, e.ItemID})
	}
	want := [][2]int64{{digestOn, 1}, {digestOn, 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pending entries mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkEntriesSentExcludesFromPending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rid := mustCreateRecipient(t, s, "user@example.com")
	if err := s.UpsertPreference(ctx, &model.DeliveryPreference{RecipientID: rid, DigestEnabled: true}); err != nil {
		t.Fatalf("upsert preference: %v", err)
	}

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := []model.QueueEntry{
		{RecipientID: rid, ItemID: 1, CreatedAt: base},
		{RecipientID: rid, ItemID: 2, CreatedAt: base},
	}
	if err := s.EnqueueEntries(ctx, entries); err != nil {
		t.Fatalf("enqueue entries: %v", err)
	}

	cutoff := base.Add(3 * time.Hour)
	if err := s.MarkEntriesSent(ctx, []int64{entries[0].ID}, cutoff); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	pending, err := s.ListPendingDigest(ctx, cutoff)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != entries[1].ID {
		t.Fatalf("expected only the unmarked entry to remain pending, got %+v", pending)
	}

	// Marking the same set again is a no-op for already-marked entries.
	if err := s.MarkEntriesSent(ctx, []int64{entries[0].ID, entries[1].ID}, cutoff.Add(time.Hour)); err != nil {
		t.Fatalf("mark sent again: %v", err)
	}
	pending, err = s.ListPendingDigest(ctx, cutoff)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending entries after marking all, got %d", len(pending))
	}
}

func TestEnqueueEntriesPopulatesIDsInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entries := []model.QueueEntry{
		{RecipientID: 1, ItemID: 10},
		{RecipientID: 1, ItemID: 11},
		{RecipientID: 2, ItemID: 10},
	}
	if err := s.EnqueueEntries(ctx, entries); err != nil {
		t.Fatalf("enqueue entries: %v", err)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID <= entries[i-1].ID {
			t.Errorf("entry IDs not increasing: %d then %d", entries[i-1].ID, entries[i].ID)
		}
	}
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be populated")
		}
	}
}
