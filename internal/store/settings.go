package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Setting keys known to the server.
const (
	SettingAdminUsername     = "admin_username"
	SettingAdminPasswordHash = "admin_password_hash"
	SettingSubToken          = "sub_token"
	SettingSubName           = "sub_name"
	SettingSubFilename       = "sub_filename"
)

const (
	defaultSubName     = "Aggregated"
	defaultSubFilename = "config.yaml"
)

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// GetSettingDefault returns fallback when the key has never been set.
func (s *Store) GetSettingDefault(ctx context.Context, key, fallback string) string {
	value, err := s.GetSetting(ctx, key)
	if err != nil {
		return fallback
	}
	return value
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetTemplate returns the stored render template content.
func (s *Store) GetTemplate(ctx context.Context) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `SELECT content FROM template WHERE id = 1`).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get template: %w", err)
	}
	return content, nil
}

func (s *Store) SetTemplate(ctx context.Context, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO template (id, content, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set template: %w", err)
	}
	return nil
}

// EnsureDefaults seeds the settings and template a fresh database
// needs: the subscription token, display name, download filename and
// the default render template. Admin credentials are seeded by the
// auth manager. Returns the subscription token currently in effect.
func (s *Store) EnsureDefaults(ctx context.Context, defaultTemplate string) (string, error) {
	token, err := s.GetSetting(ctx, SettingSubToken)
	if errors.Is(err, ErrSettingNotFound) {
		token = newUserToken()
		if err := s.SetSetting(ctx, SettingSubToken, token); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	if _, err := s.GetSetting(ctx, SettingSubName); errors.Is(err, ErrSettingNotFound) {
		if err := s.SetSetting(ctx, SettingSubName, defaultSubName); err != nil {
			return "", err
		}
	}
	if _, err := s.GetSetting(ctx, SettingSubFilename); errors.Is(err, ErrSettingNotFound) {
		if err := s.SetSetting(ctx, SettingSubFilename, defaultSubFilename); err != nil {
			return "", err
		}
	}

	if _, err := s.GetTemplate(ctx); errors.Is(err, ErrSettingNotFound) {
		if err := s.SetTemplate(ctx, defaultTemplate); err != nil {
			return "", err
		}
	}

	return token, nil
}
