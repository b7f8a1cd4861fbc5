package handler

import (
	"encoding/json"
	"net/http"

	"submerge/internal/store"
)

type orderPayload struct {
	Order []string `json:"order"`
}

// NewSourceOrderHandler serves GET and PUT on /api/source-order. The
// order is a list of subscription ids plus optionally the custom
// source id; unknown ids are tolerated here and ignored at merge time.
func NewSourceOrderHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			order, err := st.SourceOrder(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if order == nil {
				order = []string{}
			}
			respondJSON(w, http.StatusOK, orderPayload{Order: order})
		case http.MethodPut:
			var payload orderPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := st.SetSourceOrder(r.Context(), payload.Order); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}
