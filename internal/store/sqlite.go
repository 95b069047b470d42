package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"dealalert/internal/model"
	"dealalert/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateItem inserts a new item and populates its ID.
// CreatedAt defaults to the current time when unset.
func (s *SQLite) CreateItem(ctx context.Context, item *model.Item) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (title, description, category, created_at) VALUES (?, ?, ?, ?)`,
		item.Title, item.Description, item.Category, formatTime(item.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	item.ID = id
	return nil
}

// GetItems returns the items with the given IDs, keyed by ID.
// Missing IDs are simply absent from the result.
func (s *SQLite) GetItems(ctx context.Context, ids []int64) (map[int64]model.Item, error) {
	items := make(map[int64]model.Item, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	query := `SELECT id, title, description, category, created_at FROM items WHERE id IN (` +
		placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var it model.Item
		var created string
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &it.Category, &created); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.CreatedAt, _ = time.Parse(timeLayout, created)
		items[it.ID] = it
	}
	return items, rows.Err()
}

// CreateRecipient inserts a new recipient and populates its ID.
func (s *SQLite) CreateRecipient(ctx context.Context, r *model.Recipient) error {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients (address, created_at) VALUES (?, ?)`,
		r.Address, now,
	)
	if err != nil {
		return fmt.Errorf("insert recipient: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetRecipients returns the recipients with the given IDs, keyed by ID.
func (s *SQLite) GetRecipients(ctx context.Context, ids []int64) (map[int64]model.Recipient, error) {
	recipients := make(map[int64]model.Recipient, len(ids))
	if len(ids) == 0 {
		return recipients, nil
	}
	query := `SELECT id, address, created_at FROM recipients WHERE id IN (` +
		placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r model.Recipient
		var created string
		if err := rows.Scan(&r.ID, &r.Address, &created); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		recipients[r.ID] = r
	}
	return recipients, rows.Err()
}

// CreateRule inserts a new alert rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, rule *model.AlertRule) error {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (recipient_id, kind, value, created_at) VALUES (?, ?, ?, ?)`,
		rule.RecipientID, string(rule.Kind), rule.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// ListRules returns every alert rule in the store.
func (s *SQLite) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient_id, kind, value, created_at FROM alert_rules ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.AlertRule
	for rows.Next() {
		var r model.AlertRule
		var kind, created string
		if err := rows.Scan(&r.ID, &r.RecipientID, &kind, &r.Value, &created); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Kind = model.RuleKind(kind)
		r.CreatedAt, _ = time.Parse(timeLayout, created)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule removes an alert rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// UpsertPreference inserts or replaces a recipient's delivery preference.
func (s *SQLite) UpsertPreference(ctx context.Context, p *model.DeliveryPreference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_preferences (recipient_id, immediate_enabled, digest_enabled)
		 VALUES (?, ?, ?)
		 ON CONFLICT (recipient_id) DO UPDATE SET
		   immediate_enabled = excluded.immediate_enabled,
		   digest_enabled = excluded.digest_enabled`,
		p.RecipientID, boolToInt(p.ImmediateEnabled), boolToInt(p.DigestEnabled),
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// GetPreferences returns delivery preferences for the given recipient IDs,
// keyed by recipient ID. Recipients without a preference record are absent.
func (s *SQLite) GetPreferences(ctx context.Context, recipientIDs []int64) (map[int64]model.DeliveryPreference, error) {
	prefs := make(map[int64]model.DeliveryPreference, len(recipientIDs))
	if len(recipientIDs) == 0 {
		return prefs, nil
	}
	query := `SELECT recipient_id, immediate_enabled, digest_enabled
		 FROM delivery_preferences WHERE recipient_id IN (` + placeholders(len(recipientIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(recipientIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p model.DeliveryPreference
		var immediate, digest int
		if err := rows.Scan(&p.RecipientID, &immediate, &digest); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		p.ImmediateEnabled = immediate == 1
		p.DigestEnabled = digest == 1
		prefs[p.RecipientID] = p
	}
	return prefs, rows.Err()
}

// EnqueueEntries inserts queue entries in one transaction, preserving
// their order. IDs and zero CreatedAt fields are populated.
func (s *SQLite) EnqueueEntries(ctx context.Context, entries []model.QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries (recipient_id, item_id, created_at) VALUES (?, ?, ?)`,
			entries[i].RecipientID, entries[i].ItemID, formatTime(entries[i].CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert queue entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		entries[i].ID = id
	}
	return tx.Commit()
}

// ListPendingDigest returns unsent queue entries created before the cutoff
// for recipients whose digest delivery is enabled right now. Entries are
// ordered by recipient, then by insertion order within a recipient.
func (s *SQLite) ListPendingDigest(ctx context.Context, before time.Time) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.recipient_id, q.item_id, q.created_at, q.sent_at
		 FROM queue_entries q
		 JOIN delivery_preferences p ON p.recipient_id = q.recipient_id AND p.digest_enabled = 1
		 WHERE q.sent_at IS NULL AND q.created_at < ?
		 ORDER BY q.recipient_id, q.id`,
		formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("query pending entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var created string
		var sent sql.NullString
		if err := rows.Scan(&e.ID, &e.RecipientID, &e.ItemID, &created, &sent); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		if sent.Valid {
			t, _ := time.Parse(timeLayout, sent.String)
			e.SentAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkEntriesSent sets sent_at on the given entry IDs in a single batched
// update. Entries already marked keep their original timestamp.
func (s *SQLite) MarkEntriesSent(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE queue_entries SET sent_at = ? WHERE sent_at IS NULL AND id IN (` +
		placeholders(len(ids)) + `)`
	args := append([]any{formatTime(at.UTC())}, int64Args(ids)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark entries sent: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
