package handler

import (
	"errors"
	"net/http"
	"time"

	"submerge/internal/logger"
	"submerge/internal/merge"
	"submerge/internal/store"
	"submerge/internal/subserve"
	"submerge/internal/template"
)

// NewSubHandler serves the aggregated subscription at /sub. The token
// query parameter selects either full access (the admin subscription
// token) or a sub-account with its allocation applied.
func NewSubHandler(st *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
			return
		}

		ctx := r.Context()
		token := r.URL.Query().Get("token")

		var (
			user    *store.User
			subName = st.GetSettingDefault(ctx, store.SettingSubName, "Aggregated")
		)

		adminToken := st.GetSettingDefault(ctx, store.SettingSubToken, "")
		if adminToken == "" || token != adminToken {
			u, err := st.GetUserByToken(ctx, token)
			if errors.Is(err, store.ErrUserNotFound) {
				writeError(w, http.StatusUnauthorized, errors.New("invalid subscription token"))
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if !u.Enabled {
				writeError(w, http.StatusForbidden, errors.New("user account is disabled"))
				return
			}
			if u.Expired(time.Now()) {
				writeError(w, http.StatusForbidden, errors.New("subscription expired"))
				return
			}
			user = &u
			subName = subName + " - " + u.Name
		}

		sources, byID, err := collectSources(ctx, st)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if user != nil {
			sources = subserve.FilterSources(sources, user.Allocation)
		}
		if len(sources) == 0 {
			writeError(w, http.StatusNotFound, errors.New("no enabled subscriptions or custom nodes"))
			return
		}

		order, err := st.SourceOrder(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		nodes := merge.Nodes(sources, order)

		traffic := sourceTraffic(sources, byID)
		totals := subserve.Aggregate(traffic)
		nodes = append(subserve.InfoNodes(traffic), nodes...)

		tpl, err := st.GetTemplate(ctx)
		if errors.Is(err, store.ErrSettingNotFound) {
			tpl = template.Default
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		format := subserve.ResolveFormat(r.URL.Query().Get("format"), r.UserAgent())
		resp, err := subserve.Build(subserve.Request{
			Format:   format,
			Nodes:    nodes,
			Template: tpl,
			Name:     subName,
			Filename: st.GetSettingDefault(ctx, store.SettingSubFilename, "config.yaml"),
			Totals:   totals,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		logger.Debug("订阅已下发", "nodes", len(nodes), "format", string(format))

		w.Header().Set("Content-Type", resp.ContentType)
		w.Header().Set("Content-Disposition", resp.Disposition)
		w.Header().Set("profile-title", resp.Title)
		w.Header().Set("profile-update-interval", "24")
		w.Header().Set("subscription-userinfo", resp.UserInfo)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Body)
	})
}
