package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"submerge/internal/auth"
	"submerge/internal/logger"
	"submerge/internal/store"
)

type subscriptionPayload struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	UserAgent string `json:"user_agent"`
	Enabled   *bool  `json:"enabled"`
}

type subscriptionView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Enabled   bool   `json:"enabled"`
	UserAgent string `json:"user_agent"`
	Upload    int64  `json:"upload"`
	Download  int64  `json:"download"`
	Total     int64  `json:"total"`
	Expire    int64  `json:"expire"`
	NodeCount int    `json:"node_count"`
	LastError string `json:"last_error"`
	FetchedAt string `json:"fetched_at,omitempty"`
}

func subscriptionToView(sub store.Subscription) subscriptionView {
	view := subscriptionView{
		ID:        sub.ID,
		Name:      sub.Name,
		URL:       sub.URL,
		Enabled:   sub.Enabled,
		UserAgent: sub.UserAgent,
		Upload:    sub.Upload,
		Download:  sub.Download,
		Total:     sub.Total,
		Expire:    sub.Expire,
		NodeCount: sub.NodeCount,
		LastError: sub.LastError,
	}
	if !sub.FetchedAt.IsZero() {
		view.FetchedAt = sub.FetchedAt.Format(time.RFC3339)
	}
	return view
}

// NewSubscriptionsHandler serves GET (list) and POST (create) on
// /api/subscriptions.
func NewSubscriptionsHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			subs, err := st.ListSubscriptions(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			views := make([]subscriptionView, 0, len(subs))
			for _, sub := range subs {
				views = append(views, subscriptionToView(sub))
			}
			respondJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var payload subscriptionPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := true
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			sub, err := st.CreateSubscription(r.Context(), payload.Name, payload.URL, payload.UserAgent, enabled)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			logger.Info("新增订阅", "name", sub.Name)
			respondJSON(w, http.StatusCreated, subscriptionToView(sub))
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

// NewSubscriptionItemHandler serves /api/subscriptions/{id} and
// /api/subscriptions/{id}/refresh.
func NewSubscriptionItemHandler(st *store.Store, refresher *Refresher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		suffix := pathSuffix(r, "/api/subscriptions")
		if suffix == "" {
			writeError(w, http.StatusNotFound, errors.New("subscription id is required"))
			return
		}

		if id, ok := strings.CutSuffix(suffix, "/refresh"); ok {
			handleSubscriptionRefresh(w, r, st, refresher, strings.Trim(id, "/"))
			return
		}

		id := suffix
		switch r.Method {
		case http.MethodGet:
			sub, err := st.GetSubscription(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, subscriptionToView(sub))
		case http.MethodPut:
			var payload subscriptionPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := true
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			sub, err := st.UpdateSubscription(r.Context(), id, payload.Name, payload.URL, payload.UserAgent, enabled)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, subscriptionToView(sub))
		case http.MethodDelete:
			if err := st.DeleteSubscription(r.Context(), id); err != nil {
				writeStoreError(w, err)
				return
			}
			logger.Info("删除订阅", "id", id)
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

func handleSubscriptionRefresh(w http.ResponseWriter, r *http.Request, st *store.Store, refresher *Refresher, id string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		return
	}

	sub, err := st.GetSubscription(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	result, err := refresher.RefreshOne(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// NewRefreshAllHandler refreshes every enabled subscription and
// returns the per-subscription outcomes once all have finished.
func NewRefreshAllHandler(refresher *Refresher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		results, err := refresher.RefreshAll(r.Context(), nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		respondJSON(w, http.StatusOK, results)
	})
}

var refreshUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// same-origin policy is enforced by the session token below
	CheckOrigin: func(r *http.Request) bool { return true },
}

type refreshProgressMessage struct {
	Type   string        `json:"type"`
	Result RefreshResult `json:"result,omitempty"`
	Total  int           `json:"total,omitempty"`
	Done   int           `json:"done,omitempty"`
}

// NewRefreshProgressHandler streams refresh-all progress over a
// websocket. Browsers cannot set custom headers on websocket dials, so
// the session token travels in the token query parameter.
func NewRefreshProgressHandler(tokens *auth.TokenStore, st *store.Store, refresher *Refresher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tokens.Lookup(r.URL.Query().Get("token")); !ok {
			auth.WriteUnauthorizedResponse(w)
			return
		}

		conn, err := refreshUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket升级失败", "error", err)
			return
		}
		defer conn.Close()

		subs, err := st.ListSubscriptions(r.Context())
		if err != nil {
			_ = conn.WriteJSON(refreshProgressMessage{Type: "error"})
			return
		}
		total := 0
		for _, sub := range subs {
			if sub.Enabled {
				total++
			}
		}
		_ = conn.WriteJSON(refreshProgressMessage{Type: "start", Total: total})

		// progress arrives from refresh goroutines; gorilla allows only
		// one concurrent writer per connection
		var (
			mu   sync.Mutex
			done int
		)
		results, err := refresher.RefreshAll(r.Context(), func(result RefreshResult) {
			mu.Lock()
			defer mu.Unlock()
			done++
			_ = conn.WriteJSON(refreshProgressMessage{Type: "progress", Result: result, Total: total, Done: done})
		})
		if err != nil {
			_ = conn.WriteJSON(refreshProgressMessage{Type: "error"})
			return
		}
		_ = conn.WriteJSON(refreshProgressMessage{Type: "finished", Total: total, Done: len(results)})
	})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSubscriptionNotFound),
		errors.Is(err, store.ErrCustomNodeNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrSettingNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicateName):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
