package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"submerge/internal/node"
)

// Subscription is a remote source plus the metadata from its last
// successful fetch. The node cache lives in subscription_nodes.
type Subscription struct {
	ID        string
	Name      string
	URL       string
	Enabled   bool
	UserAgent string
	Upload    int64
	Download  int64
	Total     int64
	Expire    int64
	NodeCount int
	LastError string
	FetchedAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshUpdate carries the outcome of a successful fetch into the
// store. Nodes replace the previous cache in one transaction.
type RefreshUpdate struct {
	Nodes    []node.Node
	Upload   int64
	Download int64
	Total    int64
	Expire   int64
}

const subscriptionColumns = `id, name, url, enabled, user_agent, upload, download, total, expire, node_count, last_error, fetched_at, created_at, updated_at`

func scanSubscription(scanner rowScanner) (Subscription, error) {
	var (
		sub       Subscription
		fetchedAt sql.NullTime
	)
	err := scanner.Scan(&sub.ID, &sub.Name, &sub.URL, &sub.Enabled, &sub.UserAgent,
		&sub.Upload, &sub.Download, &sub.Total, &sub.Expire, &sub.NodeCount,
		&sub.LastError, &fetchedAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Subscription{}, err
	}
	if fetchedAt.Valid {
		sub.FetchedAt = fetchedAt.Time
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ListSubscriptions returns every subscription in creation order.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	if strings.TrimSpace(id) == "" {
		return Subscription{}, errors.New("subscription id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// CreateSubscription registers a new source. Nodes arrive later via
// CommitRefresh.
func (s *Store) CreateSubscription(ctx context.Context, name, url, userAgent string, enabled bool) (Subscription, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" {
		return Subscription{}, errors.New("subscription name is required")
	}
	if url == "" {
		return Subscription{}, errors.New("subscription url is required")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, name, url, enabled, user_agent, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, name, url, enabled, userAgent, now, now)
	if err != nil {
		return Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	return s.GetSubscription(ctx, id)
}

func (s *Store) UpdateSubscription(ctx context.Context, id, name, url, userAgent string, enabled bool) (Subscription, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)
	if name == "" || url == "" {
		return Subscription{}, errors.New("subscription name and url are required")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET name = ?, url = ?, user_agent = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		name, url, userAgent, enabled, time.Now().UTC(), id)
	if err != nil {
		return Subscription{}, fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s.GetSubscription(ctx, id)
}

// DeleteSubscription removes the source and its cached nodes.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete subscription: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_nodes WHERE subscription_id = ?`, id); err != nil {
		return fmt.Errorf("delete subscription nodes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubscriptionNotFound
	}
	return tx.Commit()
}

// CommitRefresh atomically replaces the cached node list and records
// the traffic metadata from a successful fetch. Readers observe either
// the entire old cache or the entire new one.
func (s *Store) CommitRefresh(ctx context.Context, id string, update RefreshUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh commit: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE subscriptions
		 SET upload = ?, download = ?, total = ?, expire = ?, node_count = ?, last_error = '', fetched_at = ?, updated_at = ?
		 WHERE id = ?`,
		update.Upload, update.Download, update.Total, update.Expire,
		len(update.Nodes), time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update subscription metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubscriptionNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_nodes WHERE subscription_id = ?`, id); err != nil {
		return fmt.Errorf("clear node cache: %w", err)
	}
	for i, n := range update.Nodes {
		cfg, err := json.Marshal(n.ClashMap())
		if err != nil {
			return fmt.Errorf("encode node %q: %w", n.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO subscription_nodes (subscription_id, position, name, protocol, clash_config)
			 VALUES (?, ?, ?, ?, ?)`,
			id, i, n.Name, string(n.Opts.Protocol()), string(cfg))
		if err != nil {
			return fmt.Errorf("insert node cache: %w", err)
		}
	}

	return tx.Commit()
}

// RecordRefreshError keeps the previous node cache but notes why the
// latest fetch failed.
func (s *Store) RecordRefreshError(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_error = ?, fetched_at = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("record refresh error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// SubscriptionNodes returns the cached node list in fetch order. Rows
// that no longer decode are skipped rather than failing the read.
func (s *Store) SubscriptionNodes(ctx context.Context, id string) ([]node.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clash_config FROM subscription_nodes WHERE subscription_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list subscription nodes: %w", err)
	}
	defer rows.Close()

	var nodes []node.Node
	for rows.Next() {
		var cfg string
		if err := rows.Scan(&cfg); err != nil {
			return nil, fmt.Errorf("scan node cache: %w", err)
		}
		n, err := decodeClashJSON(cfg)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node cache: %w", err)
	}
	return nodes, nil
}

func decodeClashJSON(cfg string) (node.Node, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(cfg), &m); err != nil {
		return node.Node{}, err
	}
	return node.FromClashMap(m)
}
