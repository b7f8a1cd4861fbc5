package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"submerge/internal/logger"
	"submerge/internal/store"
)

type settingsView struct {
	SubName     string `json:"sub_name"`
	SubFilename string `json:"sub_filename"`
	SubToken    string `json:"sub_token"`
}

// NewSettingsHandler serves the subscription delivery settings: the
// profile name, download filename and the admin subscription token.
func NewSettingsHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			respondJSON(w, http.StatusOK, settingsView{
				SubName:     st.GetSettingDefault(r.Context(), store.SettingSubName, ""),
				SubFilename: st.GetSettingDefault(r.Context(), store.SettingSubFilename, ""),
				SubToken:    st.GetSettingDefault(r.Context(), store.SettingSubToken, ""),
			})
		case http.MethodPut:
			var payload settingsView
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if name := strings.TrimSpace(payload.SubName); name != "" {
				if err := st.SetSetting(r.Context(), store.SettingSubName, name); err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
			}
			if filename := strings.TrimSpace(payload.SubFilename); filename != "" {
				if err := st.SetSetting(r.Context(), store.SettingSubFilename, filename); err != nil {
					writeError(w, http.StatusInternalServerError, err)
					return
				}
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

// NewSubTokenResetHandler rotates the admin subscription token.
func NewSubTokenResetHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		token := store.NewToken()
		if err := st.SetSetting(r.Context(), store.SettingSubToken, token); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		logger.Info("订阅token已重置")
		respondJSON(w, http.StatusOK, map[string]string{"sub_token": token})
	})
}
