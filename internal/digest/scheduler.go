package digest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"dealalert/internal/delivery"
	"dealalert/internal/model"
	"dealalert/internal/render"
	"dealalert/internal/store"
)

// Scheduler drains unsent queue entries once per closed window, sends one
// batched message per recipient, and marks entries sent only after a
// confirmed dispatch. Runs are single-flight: an invocation that finds a
// run in progress exits immediately as a no-op.
type Scheduler struct {
	store       store.Storage
	client      delivery.Client
	log         *slog.Logger
	loc         *time.Location
	cronSpec    string
	workers     int
	sendTimeout time.Duration

	running sync.Mutex
}

// New creates a Scheduler firing at the start of each window (00:00 and
// 12:00 in loc) with 4 dispatch workers and a 30s send timeout.
func New(st store.Storage, client delivery.Client, log *slog.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{
		store:       st,
		client:      client,
		log:         log,
		loc:         loc,
		cronSpec:    "0 0,12 * * *",
		workers:     4,
		sendTimeout: 30 * time.Second,
	}
}

// SetCronSpec overrides the firing schedule. Extra fires are harmless:
// a run with nothing pending is a no-op.
func (s *Scheduler) SetCronSpec(spec string) {
	s.cronSpec = spec
}

// SetWorkers overrides the dispatch concurrency bound.
func (s *Scheduler) SetWorkers(n int) {
	s.workers = n
}

// SetSendTimeout overrides the per-message delivery timeout.
func (s *Scheduler) SetSendTimeout(d time.Duration) {
	s.sendTimeout = d
}

// Run starts the cron loop, blocking until ctx is cancelled. One run is
// executed immediately at startup so entries left over from a missed
// fire are picked up without waiting for the next window boundary.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.cronSpec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", s.cronSpec, err)
	}

	if err := s.RunOnce(ctx, time.Now()); err != nil {
		s.log.Error("digest run failed", "error", err)
	}

	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(s.cronSpec, func() {
		if err := s.RunOnce(ctx, time.Now()); err != nil {
			s.log.Error("digest run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce executes a single digest pass as of the given instant. A store
// failure aborts the whole pass without marking anything; per-recipient
// dispatch failures leave that recipient's entries unsent for the next
// pass and never abort the batch.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	if !s.running.TryLock() {
		s.log.Warn("digest run already in progress, skipping")
		return nil
	}
	defer s.running.Unlock()

	closed := LastClosed(now, s.loc)
	s.log.Debug("digest run",
		"slot", closed.Slot, "window_start", closed.Start, "window_end", closed.End)

	// The fetch is bounded only by the closed window's end: anything
	// unsent from earlier windows (a missed fire, a failed dispatch) is
	// still eligible instead of being orphaned by a strict window check.
	entries, err := s.store.ListPendingDigest(ctx, closed.End)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	groups, order := groupByRecipient(entries)

	items, err := s.store.GetItems(ctx, itemIDs(entries))
	if err != nil {
		return fmt.Errorf("get items: %w", err)
	}
	recipients, err := s.store.GetRecipients(ctx, order)
	if err != nil {
		return fmt.Errorf("get recipients: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	var mu sync.Mutex
	sent, failed := 0, 0

	for _, recipientID := range order {
		recipientID := recipientID
		group := groups[recipientID]
		g.Go(func() error {
			ok := s.dispatchGroup(ctx, recipientID, recipients, group, items, now)
			mu.Lock()
			if ok {
				sent++
			} else {
				failed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("digest run complete",
		"slot", closed.Slot, "recipients", len(order), "sent", sent, "failed", failed)
	return nil
}

// dispatchGroup sends one recipient's digest and marks its entries on
// success. Entries whose item vanished are skipped from the body but
// marked along with the rest so they do not linger in every future run.
func (s *Scheduler) dispatchGroup(ctx context.Context, recipientID int64, recipients map[int64]model.Recipient, group []model.QueueEntry, items map[int64]model.Item, now time.Time) bool {
	rec, ok := recipients[recipientID]
	if !ok || rec.Address == "" {
		s.log.Error("recipient record missing or has no address",
			"recipient_id", recipientID, "entries", len(group))
		return false
	}

	var body []model.Item
	ids := make([]int64, 0, len(group))
	for _, e := range group {
		item, ok := items[e.ItemID]
		if !ok {
			s.log.Warn("queued item no longer exists",
				"entry_id", e.ID, "item_id", e.ItemID, "recipient_id", recipientID)
			ids = append(ids, e.ID)
			continue
		}
		body = append(body, item)
		ids = append(ids, e.ID)
	}
	if len(body) == 0 {
		// Nothing to send and nothing was dispatched, so the entries
		// stay unmarked and visible in the logs.
		s.log.Warn("all queued items vanished for recipient", "recipient_id", recipientID)
		return false
	}

	msg := render.Digest(body)

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	err := s.client.Send(sendCtx, delivery.Message{
		To:      rec.Address,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		s.log.Error("digest dispatch failed",
			"recipient_id", recipientID, "entries", len(group), "error", err)
		return false
	}

	if err := s.store.MarkEntriesSent(ctx, ids, now); err != nil {
		// The message went out but the mark did not stick; the next run
		// re-sends rather than silently dropping.
		s.log.Error("mark entries sent failed",
			"recipient_id", recipientID, "entries", len(ids), "error", err)
		return false
	}

	s.log.Debug("digest sent",
		"recipient_id", recipientID, "items", len(body), "entries", len(ids))
	return true
}

// groupByRecipient partitions entries per recipient, preserving the
// relative enqueue order inside each group, and returns the recipient
// order of first appearance.
func groupByRecipient(entries []model.QueueEntry) (map[int64][]model.QueueEntry, []int64) {
	groups := make(map[int64][]model.QueueEntry)
	var order []int64
	for _, e := range entries {
		if _, ok := groups[e.RecipientID]; !ok {
			order = append(order, e.RecipientID)
		}
		groups[e.RecipientID] = append(groups[e.RecipientID], e)
	}
	return groups, order
}

func itemIDs(entries []model.QueueEntry) []int64 {
	seen := make(map[int64]struct{}, len(entries))
	var ids []int64
	for _, e := range entries {
		if _, ok := seen[e.ItemID]; ok {
			continue
		}
		seen[e.ItemID] = struct{}{}
		ids = append(ids, e.ItemID)
	}
	return ids
}
