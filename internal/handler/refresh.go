package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"submerge/internal/fetch"
	"submerge/internal/logger"
	"submerge/internal/store"
)

// refreshConcurrency bounds parallel fetches during refresh-all so a
// batch never floods the remote providers.
const refreshConcurrency = 5

// RefreshResult reports the outcome of refreshing one subscription.
type RefreshResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
	Error     string `json:"error,omitempty"`
}

// Refresher fetches subscriptions and commits their node caches.
type Refresher struct {
	store *store.Store
}

func NewRefresher(st *store.Store) *Refresher {
	if st == nil {
		panic("refresher requires a store")
	}
	return &Refresher{store: st}
}

// RefreshOne fetches a single subscription. Fetch and parse failures
// are recorded on the subscription and returned in the result rather
// than as an error; only store failures surface as errors.
func (rf *Refresher) RefreshOne(ctx context.Context, sub store.Subscription) (RefreshResult, error) {
	result := RefreshResult{ID: sub.ID, Name: sub.Name}

	res, err := fetch.Fetch(ctx, sub.URL, sub.UserAgent)
	if err != nil {
		result.Error = refreshReason(err)
		logger.Warn("订阅拉取失败", "name", sub.Name, "reason", result.Error)
		if storeErr := rf.store.RecordRefreshError(ctx, sub.ID, result.Error); storeErr != nil {
			return result, storeErr
		}
		return result, nil
	}

	nodes, err := fetch.ParseBody(res.Body)
	if err != nil {
		result.Error = err.Error()
		logger.Warn("订阅内容解析失败", "name", sub.Name, "error", err)
		if storeErr := rf.store.RecordRefreshError(ctx, sub.ID, result.Error); storeErr != nil {
			return result, storeErr
		}
		return result, nil
	}

	update := store.RefreshUpdate{
		Nodes:    nodes,
		Upload:   res.Traffic.Upload,
		Download: res.Traffic.Download,
		Total:    res.Traffic.Total,
		Expire:   res.Traffic.Expire,
	}
	if err := rf.store.CommitRefresh(ctx, sub.ID, update); err != nil {
		return result, err
	}

	result.NodeCount = len(nodes)
	logger.Info("订阅刷新完成", "name", sub.Name, "nodes", len(nodes))
	return result, nil
}

// RefreshAll refreshes every enabled subscription with bounded
// fan-out. Each completed subscription is reported through progress
// as it finishes; a hung source delays only its own slot.
func (rf *Refresher) RefreshAll(ctx context.Context, progress func(RefreshResult)) ([]RefreshResult, error) {
	subs, err := rf.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var enabled []store.Subscription
	for _, sub := range subs {
		if sub.Enabled {
			enabled = append(enabled, sub)
		}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		sem     = make(chan struct{}, refreshConcurrency)
		results = make([]RefreshResult, 0, len(enabled))
	)

	for _, sub := range enabled {
		wg.Add(1)
		go func(sub store.Subscription) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := rf.RefreshOne(ctx, sub)
			if err != nil {
				result.Error = err.Error()
			}

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			if progress != nil {
				progress(result)
			}
		}(sub)
	}

	wg.Wait()
	return results, nil
}

func refreshReason(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		if fe.Status != 0 {
			return fmt.Sprintf("%s (%d)", fe.Reason, fe.Status)
		}
		return fe.Reason
	}
	return err.Error()
}
