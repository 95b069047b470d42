// Package pipeline routes newly published items to notifications.
//
// It is the single home of the match → resolve → route flow, invoked
// synchronously by every publish trigger so the predicate logic cannot
// drift between call sites.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"dealalert/internal/delivery"
	"dealalert/internal/match"
	"dealalert/internal/model"
	"dealalert/internal/render"
	"dealalert/internal/store"
)

// Result summarizes one publish run. Failed counts immediate dispatches
// that did not go through; they are reported to the caller and never
// retried or rerouted to the digest queue.
type Result struct {
	Matched   int
	Delivered int
	Queued    int
	Dropped   int
	Failed    int
}

// Pipeline matches a published item against all standing rules and
// delivers or enqueues notifications per recipient preference.
type Pipeline struct {
	store       store.Storage
	client      delivery.Client
	log         *slog.Logger
	limiter     *rate.Limiter
	sendTimeout time.Duration
}

// New creates a Pipeline with a 20 msg/s send rate and 30s send timeout.
func New(st store.Storage, client delivery.Client, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store:       st,
		client:      client,
		log:         log,
		limiter:     rate.NewLimiter(rate.Limit(20), 1),
		sendTimeout: 30 * time.Second,
	}
}

// SetSendRate overrides the immediate-path send rate limit.
func (p *Pipeline) SetSendRate(perSecond float64) {
	p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// SetSendTimeout overrides the per-message delivery timeout.
func (p *Pipeline) SetSendTimeout(d time.Duration) {
	p.sendTimeout = d
}

// Publish runs the full pipeline for one newly published item. Recipient
// level problems are logged and counted, never returned; only store
// failures produce an error.
func (p *Pipeline) Publish(ctx context.Context, item model.Item) (Result, error) {
	var res Result

	rules, err := p.store.ListRules(ctx)
	if err != nil {
		return res, fmt.Errorf("list rules: %w", err)
	}

	matched := match.Match(item, rules)
	res.Matched = len(matched)
	if len(matched) == 0 {
		return res, nil
	}

	recipientIDs := resolveRecipients(matched)

	prefs, err := p.store.GetPreferences(ctx, recipientIDs)
	if err != nil {
		return res, fmt.Errorf("get preferences: %w", err)
	}
	recipients, err := p.store.GetRecipients(ctx, recipientIDs)
	if err != nil {
		return res, fmt.Errorf("get recipients: %w", err)
	}

	msg := render.Immediate(item)
	now := time.Now().UTC()
	var entries []model.QueueEntry

	for _, id := range recipientIDs {
		pref, ok := prefs[id]
		if !ok {
			// No preference record on file means no delivery.
			p.log.Info("recipient has no delivery preference", "recipient_id", id, "item_id", item.ID)
			res.Dropped++
			continue
		}
		if !pref.ImmediateEnabled && !pref.DigestEnabled {
			res.Dropped++
			continue
		}

		if pref.ImmediateEnabled {
			if p.dispatchImmediate(ctx, recipients, id, item, msg) {
				res.Delivered++
			} else {
				res.Failed++
			}
		}
		// Both flags enabled means both an immediate send and a digest
		// entry for the same item.
		if pref.DigestEnabled {
			entries = append(entries, model.QueueEntry{
				RecipientID: id,
				ItemID:      item.ID,
				CreatedAt:   now,
			})
		}
	}

	if err := p.store.EnqueueEntries(ctx, entries); err != nil {
		return res, fmt.Errorf("enqueue entries: %w", err)
	}
	res.Queued = len(entries)

	return res, nil
}

func (p *Pipeline) dispatchImmediate(ctx context.Context, recipients map[int64]model.Recipient, id int64, item model.Item, msg render.Message) bool {
	rec, ok := recipients[id]
	if !ok || rec.Address == "" {
		p.log.Error("recipient record missing or has no address", "recipient_id", id, "item_id", item.ID)
		return false
	}

	if err := p.limiter.Wait(ctx); err != nil {
		p.log.Error("rate limiter wait", "recipient_id", id, "error", err)
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	err := p.client.Send(sendCtx, delivery.Message{
		To:      rec.Address,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		p.log.Error("immediate dispatch failed",
			"recipient_id", id, "item_id", item.ID, "error", err)
		return false
	}

	p.log.Debug("immediate notification sent", "recipient_id", id, "item_id", item.ID)
	return true
}

// resolveRecipients deduplicates matched rules into a sorted set of
// recipient IDs. A recipient with several matching rules appears once.
func resolveRecipients(matched []model.AlertRule) []int64 {
	seen := make(map[int64]struct{}, len(matched))
	var ids []int64
	for _, r := range matched {
		if _, ok := seen[r.RecipientID]; ok {
			continue
		}
		seen[r.RecipientID] = struct{}{}
		ids = append(ids, r.RecipientID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
