package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"submerge/internal/logger"
	"submerge/internal/store"
)

// userPayload uses pointers for the optional fields so a partial PUT
// can tell "absent" apart from an explicit zero value.
type userPayload struct {
	Name       string           `json:"name"`
	Enabled    *bool            `json:"enabled"`
	ExpiresAt  *int64           `json:"expires_at"`
	Allocation store.Allocation `json:"allocation"`
	Note       *string          `json:"note"`
}

type userView struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Token      string           `json:"token"`
	Enabled    bool             `json:"enabled"`
	ExpiresAt  int64            `json:"expires_at"`
	Allocation store.Allocation `json:"allocation"`
	Note       string           `json:"note"`
	CreatedAt  string           `json:"created_at"`
}

func userToView(u store.User) userView {
	return userView{
		ID:         u.ID,
		Name:       u.Name,
		Token:      u.Token,
		Enabled:    u.Enabled,
		ExpiresAt:  u.ExpiresAt,
		Allocation: u.Allocation,
		Note:       u.Note,
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

// NewUsersHandler serves GET (list) and POST (create) on /api/users.
func NewUsersHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			users, err := st.ListUsers(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			views := make([]userView, 0, len(users))
			for _, u := range users {
				views = append(views, userToView(u))
			}
			respondJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var payload userPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			var expiresAt int64
			if payload.ExpiresAt != nil {
				expiresAt = *payload.ExpiresAt
			}
			var note string
			if payload.Note != nil {
				note = *payload.Note
			}
			u, err := st.CreateUser(r.Context(), payload.Name, expiresAt, payload.Allocation, note)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			logger.Info("新增子账号", "name", u.Name)
			respondJSON(w, http.StatusCreated, userToView(u))
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

// NewUserItemHandler serves /api/users/{id} and /api/users/{id}/token.
func NewUserItemHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suffix := pathSuffix(r, "/api/users")
		if suffix == "" {
			writeError(w, http.StatusNotFound, errors.New("user id is required"))
			return
		}

		if id, ok := strings.CutSuffix(suffix, "/token"); ok {
			if r.Method != http.MethodPost {
				writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
				return
			}
			u, err := st.RegenerateUserToken(r.Context(), strings.Trim(id, "/"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			logger.Info("子账号token已重置", "name", u.Name)
			respondJSON(w, http.StatusOK, userToView(u))
			return
		}

		id := suffix
		switch r.Method {
		case http.MethodGet:
			u, err := st.GetUser(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, userToView(u))
		case http.MethodPut:
			current, err := st.GetUser(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			var payload userPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := current.Enabled
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			name := payload.Name
			if name == "" {
				name = current.Name
			}
			allocation := payload.Allocation
			if allocation == nil {
				allocation = current.Allocation
			}
			expiresAt := current.ExpiresAt
			if payload.ExpiresAt != nil {
				expiresAt = *payload.ExpiresAt
			}
			note := current.Note
			if payload.Note != nil {
				note = *payload.Note
			}
			u, err := st.UpdateUser(r.Context(), id, name, enabled, expiresAt, allocation, note)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, userToView(u))
		case http.MethodDelete:
			if err := st.DeleteUser(r.Context(), id); err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}
