package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"submerge/internal/logger"
	"submerge/internal/merge"
	"submerge/internal/store"
	"submerge/internal/template"
)

type templatePayload struct {
	Content string `json:"content"`
}

// NewTemplateHandler serves GET (current content) and PUT (replace)
// on /api/template. Replacements must parse as a YAML mapping.
func NewTemplateHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			content, err := st.GetTemplate(r.Context())
			if errors.Is(err, store.ErrSettingNotFound) {
				content = template.Default
			} else if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			respondJSON(w, http.StatusOK, templatePayload{Content: content})
		case http.MethodPut:
			var payload templatePayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if strings.TrimSpace(payload.Content) == "" {
				writeError(w, http.StatusBadRequest, errors.New("template content is required"))
				return
			}
			if _, err := template.Render(payload.Content, nil); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := st.SetTemplate(r.Context(), payload.Content); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			logger.Info("模板已更新")
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

// NewTemplateDefaultHandler returns the built-in template.
func NewTemplateDefaultHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}
		respondJSON(w, http.StatusOK, templatePayload{Content: template.Default})
	})
}

// NewTemplateParseHandler merges an uploaded client config into the
// current template, keeping the group and rule skeleton and dropping
// embedded proxies. The result is returned for review, not persisted.
func NewTemplateParseHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}

		var payload templatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		current, err := st.GetTemplate(r.Context())
		if errors.Is(err, store.ErrSettingNotFound) {
			current = ""
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		skeleton, err := template.ExtractSkeleton(payload.Content, current)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		respondJSON(w, http.StatusOK, templatePayload{Content: skeleton})
	})
}

// NewTemplatePreviewHandler renders the posted template content (or
// the stored one when empty) against the current merged node list.
func NewTemplatePreviewHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}

		var payload templatePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		content := payload.Content
		if strings.TrimSpace(content) == "" {
			stored, err := st.GetTemplate(r.Context())
			if errors.Is(err, store.ErrSettingNotFound) {
				stored = template.Default
			} else if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			content = stored
		}

		sources, _, err := collectSources(r.Context(), st)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		order, err := st.SourceOrder(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		nodes := merge.Nodes(sources, order)

		rendered, err := template.Render(content, nodes)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		respondJSON(w, http.StatusOK, templatePayload{Content: rendered})
	})
}
