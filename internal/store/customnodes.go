package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"submerge/internal/node"
)

// CustomNode is an admin-entered node that merges alongside the
// remote subscriptions under the custom source id.
type CustomNode struct {
	ID        int64
	Name      string
	Protocol  string
	RawURL    string
	Node      node.Node
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

const customNodeColumns = `id, name, protocol, raw_url, clash_config, enabled, created_at, updated_at`

func scanCustomNode(scanner rowScanner) (CustomNode, error) {
	var (
		cn  CustomNode
		cfg string
	)
	err := scanner.Scan(&cn.ID, &cn.Name, &cn.Protocol, &cn.RawURL, &cfg, &cn.Enabled, &cn.CreatedAt, &cn.UpdatedAt)
	if err != nil {
		return CustomNode{}, err
	}
	n, err := decodeClashJSON(cfg)
	if err != nil {
		return CustomNode{}, fmt.Errorf("decode custom node %d: %w", cn.ID, err)
	}
	cn.Node = n
	return cn, nil
}

// ListCustomNodes returns every custom node in creation order.
func (s *Store) ListCustomNodes(ctx context.Context) ([]CustomNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customNodeColumns+` FROM custom_nodes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list custom nodes: %w", err)
	}
	defer rows.Close()

	var nodes []CustomNode
	for rows.Next() {
		cn, err := scanCustomNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, cn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate custom nodes: %w", err)
	}
	return nodes, nil
}

// EnabledCustomNodes returns the node values that participate in the
// merge, in creation order.
func (s *Store) EnabledCustomNodes(ctx context.Context) ([]node.Node, error) {
	all, err := s.ListCustomNodes(ctx)
	if err != nil {
		return nil, err
	}
	var out []node.Node
	for _, cn := range all {
		if cn.Enabled {
			out = append(out, cn.Node)
		}
	}
	return out, nil
}

func (s *Store) GetCustomNode(ctx context.Context, id int64) (CustomNode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customNodeColumns+` FROM custom_nodes WHERE id = ?`, id)
	cn, err := scanCustomNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CustomNode{}, ErrCustomNodeNotFound
	}
	if err != nil {
		return CustomNode{}, fmt.Errorf("get custom node: %w", err)
	}
	return cn, nil
}

// CreateCustomNode stores n under its display name. rawURL keeps the
// original link when the node came from a pasted URI.
func (s *Store) CreateCustomNode(ctx context.Context, n node.Node, rawURL string, enabled bool) (CustomNode, error) {
	if strings.TrimSpace(n.Name) == "" {
		return CustomNode{}, errors.New("node name is required")
	}
	if n.Opts == nil {
		return CustomNode{}, errors.New("node protocol options are required")
	}

	cfg, err := json.Marshal(n.ClashMap())
	if err != nil {
		return CustomNode{}, fmt.Errorf("encode custom node: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO custom_nodes (name, protocol, raw_url, clash_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.Name, string(n.Opts.Protocol()), rawURL, string(cfg), enabled, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return CustomNode{}, ErrDuplicateName
		}
		return CustomNode{}, fmt.Errorf("create custom node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return CustomNode{}, fmt.Errorf("fetch custom node id: %w", err)
	}
	return s.GetCustomNode(ctx, id)
}

func (s *Store) UpdateCustomNode(ctx context.Context, id int64, n node.Node, rawURL string, enabled bool) (CustomNode, error) {
	if strings.TrimSpace(n.Name) == "" {
		return CustomNode{}, errors.New("node name is required")
	}
	if n.Opts == nil {
		return CustomNode{}, errors.New("node protocol options are required")
	}

	cfg, err := json.Marshal(n.ClashMap())
	if err != nil {
		return CustomNode{}, fmt.Errorf("encode custom node: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE custom_nodes SET name = ?, protocol = ?, raw_url = ?, clash_config = ?, enabled = ?, updated_at = ?
		 WHERE id = ?`,
		n.Name, string(n.Opts.Protocol()), rawURL, string(cfg), enabled, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return CustomNode{}, ErrDuplicateName
		}
		return CustomNode{}, fmt.Errorf("update custom node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return CustomNode{}, ErrCustomNodeNotFound
	}
	return s.GetCustomNode(ctx, id)
}

func (s *Store) DeleteCustomNode(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete custom node: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrCustomNodeNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
