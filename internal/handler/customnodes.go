package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"submerge/internal/link"
	"submerge/internal/logger"
	"submerge/internal/node"
	"submerge/internal/store"
)

// customNodePayload accepts either a pasted share link or a full
// clash-style proxy map. The link wins when both are present.
type customNodePayload struct {
	Link    string         `json:"link"`
	Clash   map[string]any `json:"clash"`
	Name    string         `json:"name"`
	Enabled *bool          `json:"enabled"`
}

type customNodeView struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Protocol  string         `json:"protocol"`
	RawURL    string         `json:"raw_url,omitempty"`
	Clash     map[string]any `json:"clash"`
	Enabled   bool           `json:"enabled"`
	CreatedAt string         `json:"created_at"`
}

func customNodeToView(cn store.CustomNode) customNodeView {
	return customNodeView{
		ID:        cn.ID,
		Name:      cn.Name,
		Protocol:  cn.Protocol,
		RawURL:    cn.RawURL,
		Clash:     cn.Node.ClashMap(),
		Enabled:   cn.Enabled,
		CreatedAt: cn.CreatedAt.Format(time.RFC3339),
	}
}

func (p customNodePayload) node() (node.Node, string, error) {
	if p.Link != "" {
		n, err := link.Decode(p.Link)
		if err != nil {
			return node.Node{}, "", err
		}
		if p.Name != "" {
			n.Name = p.Name
		}
		return n, p.Link, nil
	}
	if p.Clash != nil {
		n, err := node.FromClashMap(p.Clash)
		if err != nil {
			return node.Node{}, "", err
		}
		if p.Name != "" {
			n.Name = p.Name
		}
		return n, "", nil
	}
	return node.Node{}, "", errors.New("link or clash config is required")
}

// NewCustomNodesHandler serves GET (list) and POST (create) on
// /api/custom-nodes.
func NewCustomNodesHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			nodes, err := st.ListCustomNodes(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			views := make([]customNodeView, 0, len(nodes))
			for _, cn := range nodes {
				views = append(views, customNodeToView(cn))
			}
			respondJSON(w, http.StatusOK, views)
		case http.MethodPost:
			var payload customNodePayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			n, rawURL, err := payload.node()
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := true
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			cn, err := st.CreateCustomNode(r.Context(), n, rawURL, enabled)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			logger.Info("新增自建节点", "name", cn.Name, "protocol", cn.Protocol)
			respondJSON(w, http.StatusCreated, customNodeToView(cn))
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}

// NewCustomNodeItemHandler serves PUT and DELETE on
// /api/custom-nodes/{id}.
func NewCustomNodeItemHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(pathSuffix(r, "/api/custom-nodes"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid custom node id"))
			return
		}

		switch r.Method {
		case http.MethodPut:
			var payload customNodePayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			n, rawURL, err := payload.node()
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			enabled := true
			if payload.Enabled != nil {
				enabled = *payload.Enabled
			}
			cn, err := st.UpdateCustomNode(r.Context(), id, n, rawURL, enabled)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, customNodeToView(cn))
		case http.MethodDelete:
			if err := st.DeleteCustomNode(r.Context(), id); err != nil {
				writeStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		default:
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
		}
	})
}
