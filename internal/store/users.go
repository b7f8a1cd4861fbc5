package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Allocation maps a source id (subscription id or the custom source)
// to the node names a user may receive. The single entry "*" grants
// every node of that source. A source with no entry grants nothing.
type Allocation map[string][]string

// AllowsAll reports whether the source grants its full node list.
func (a Allocation) AllowsAll(sourceID string) bool {
	names := a[sourceID]
	return len(names) == 1 && names[0] == "*"
}

// Allows reports whether the named node of the source is granted.
func (a Allocation) Allows(sourceID, name string) bool {
	if a.AllowsAll(sourceID) {
		return true
	}
	for _, n := range a[sourceID] {
		if n == name {
			return true
		}
	}
	return false
}

// User is a sub-account with its own subscription token and node
// allocation. ExpiresAt is a unix timestamp, zero means never.
type User struct {
	ID         string
	Name       string
	Token      string
	Enabled    bool
	ExpiresAt  int64
	Allocation Allocation
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expired reports whether the account has an expiry in the past.
func (u User) Expired(now time.Time) bool {
	return u.ExpiresAt != 0 && now.Unix() >= u.ExpiresAt
}

const userColumns = `id, name, token, enabled, expires_at, allocation, note, created_at, updated_at`

func scanUser(scanner rowScanner) (User, error) {
	var (
		u          User
		allocation string
	)
	err := scanner.Scan(&u.ID, &u.Name, &u.Token, &u.Enabled, &u.ExpiresAt, &allocation, &u.Note, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Allocation = decodeAllocation(allocation)
	return u, nil
}

func decodeAllocation(encoded string) Allocation {
	if strings.TrimSpace(encoded) == "" {
		return Allocation{}
	}
	var a Allocation
	if err := json.Unmarshal([]byte(encoded), &a); err != nil {
		return Allocation{}
	}
	if a == nil {
		a = Allocation{}
	}
	return a
}

func encodeAllocation(a Allocation) (string, error) {
	if a == nil {
		a = Allocation{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUserByToken resolves a sub-account from its subscription token.
func (s *Store) GetUserByToken(ctx context.Context, token string) (User, error) {
	if strings.TrimSpace(token) == "" {
		return User{}, ErrUserNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE token = ?`, token)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by token: %w", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, name string, expiresAt int64, allocation Allocation, note string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, errors.New("user name is required")
	}

	encoded, err := encodeAllocation(allocation)
	if err != nil {
		return User{}, fmt.Errorf("encode allocation: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, token, enabled, expires_at, allocation, note, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		id, name, newUserToken(), expiresAt, encoded, note, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateName
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateUser(ctx context.Context, id, name string, enabled bool, expiresAt int64, allocation Allocation, note string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, errors.New("user name is required")
	}

	encoded, err := encodeAllocation(allocation)
	if err != nil {
		return User{}, fmt.Errorf("encode allocation: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, enabled = ?, expires_at = ?, allocation = ?, note = ?, updated_at = ?
		 WHERE id = ?`,
		name, enabled, expiresAt, encoded, note, time.Now().UTC(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateName
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return User{}, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// RegenerateUserToken replaces the user's subscription token,
// invalidating any previously shared link.
func (s *Store) RegenerateUserToken(ctx context.Context, id string) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET token = ?, updated_at = ? WHERE id = ?`,
		newUserToken(), time.Now().UTC(), id)
	if err != nil {
		return User{}, fmt.Errorf("regenerate user token: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return User{}, ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func newUserToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// NewToken produces a URL-safe random token, used for sub-account and
// subscription tokens alike.
func NewToken() string {
	return newUserToken()
}
