package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"submerge/internal/store"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin"
)

type Credentials struct {
	Username string `json:"username"`
}

// Manager guards the single admin account persisted in the settings
// table.
type Manager struct {
	store *store.Store
	mu    sync.RWMutex
}

func NewManager(st *store.Store) (*Manager, error) {
	if st == nil {
		return nil, errors.New("auth manager requires a store")
	}
	return &Manager{store: st}, nil
}

// EnsureAdmin seeds the default admin/admin account on first run and
// reports whether it did so.
func (m *Manager) EnsureAdmin(ctx context.Context) (bool, error) {
	_, err := m.store.GetSetting(ctx, store.SettingAdminUsername)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrSettingNotFound) {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	if err := m.store.SetSetting(ctx, store.SettingAdminUsername, defaultAdminUsername); err != nil {
		return false, err
	}
	if err := m.store.SetSetting(ctx, store.SettingAdminPasswordHash, string(hash)); err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate verifies a login attempt against the stored admin
// credentials. A false return with nil error means bad credentials.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	current, err := m.store.GetSetting(ctx, store.SettingAdminUsername)
	if err != nil {
		return false, err
	}
	if username != current {
		return false, nil
	}

	hash, err := m.store.GetSetting(ctx, store.SettingAdminPasswordHash)
	if err != nil {
		return false, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return false, nil
	}
	return true, nil
}

// Update changes the admin username and/or password. The caller is
// expected to revoke existing sessions afterwards.
func (m *Manager) Update(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" && password == "" {
		return errors.New("username or password must be provided")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if username != "" {
		if err := m.store.SetSetting(ctx, store.SettingAdminUsername, username); err != nil {
			return err
		}
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := m.store.SetSetting(ctx, store.SettingAdminPasswordHash, string(hash)); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword verifies the current password before replacing it.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return errors.New("passwords are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hash, err := m.store.GetSetting(ctx, store.SettingAdminPasswordHash)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(currentPassword)) != nil {
		return errors.New("current password is incorrect")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return m.store.SetSetting(ctx, store.SettingAdminPasswordHash, string(newHash))
}

// Credentials returns the current admin username.
func (m *Manager) Credentials(ctx context.Context) (Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	username, err := m.store.GetSetting(ctx, store.SettingAdminUsername)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: username}, nil
}
