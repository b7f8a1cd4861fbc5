package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"submerge/internal/auth"
	"submerge/internal/logger"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewLoginHandler(manager *auth.Manager, tokens *auth.TokenStore) http.Handler {
	if manager == nil || tokens == nil {
		panic("login handler requires manager and token store")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}

		var payload loginRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		username := strings.TrimSpace(payload.Username)
		if username == "" || payload.Password == "" {
			writeError(w, http.StatusBadRequest, errors.New("username and password are required"))
			return
		}

		ok, err := manager.Authenticate(r.Context(), username, payload.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			logger.Warn("登录失败", "ip", getClientIP(r), "username", username)
			writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
			return
		}

		token, expiry, err := tokens.Issue(username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		respondJSON(w, http.StatusOK, loginResponse{
			Token:     token,
			ExpiresAt: expiry,
			Username:  username,
		})
	})
}

func NewLogoutHandler(tokens *auth.TokenStore) http.Handler {
	if tokens == nil {
		panic("logout handler requires token store")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		tokens.Revoke(r.Header.Get(auth.AuthHeader))
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// NewCredentialsHandler exposes the admin account: GET returns the
// username, PUT replaces username and/or password and revokes every
// session so the admin logs in again.
func NewCredentialsHandler(manager *auth.Manager, tokens *auth.TokenStore) http.Handler {
	if manager == nil || tokens == nil {
		panic("credentials handler requires manager and token store")
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			creds, err := manager.Credentials(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			respondJSON(w, http.StatusOK, creds)
		case http.MethodPut:
			var payload credentialsRequest
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := manager.Update(r.Context(), payload.Username, payload.Password); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			tokens.RevokeAll()
			logger.Info("管理员凭据已更新")
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}
