package store

import (
	"context"
	"fmt"
)

// SourceOrder returns the persisted merge order of source ids. An
// empty slice means no order has been saved yet.
func (s *Store) SourceOrder(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM source_order ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("get source order: %w", err)
	}
	defer rows.Close()

	var order []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source order: %w", err)
		}
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source order: %w", err)
	}
	return order, nil
}

// SetSourceOrder replaces the persisted order in one transaction.
func (s *Store) SetSourceOrder(ctx context.Context, order []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set source order: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_order`); err != nil {
		return fmt.Errorf("clear source order: %w", err)
	}
	for i, id := range order {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_order (position, source_id) VALUES (?, ?)`, i, id); err != nil {
			return fmt.Errorf("insert source order: %w", err)
		}
	}
	return tx.Commit()
}
