package syncer

import (
	"sort"

	"kassirpos/agent/internal/domain"
)

// mergeTransactions combines local pending entries with the remote-derived
// view. Identity is the remote id when present, else the local id; local
// entries win on collision (a pending record must never be shadowed by a
// stale remote row). Result is newest-first by creation time.
func mergeTransactions(local, remote []domain.LocalTransaction) []domain.LocalTransaction {
	merged := make(map[string]domain.LocalTransaction, len(local)+len(remote))
	order := make([]string, 0, len(local)+len(remote))

	put := func(tx domain.LocalTransaction) {
		key := "local:" + tx.LocalID
		if tx.RemoteID != "" {
			key = "remote:" + tx.RemoteID
		}
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		merged[key] = tx
	}
	for _, tx := range remote {
		put(tx)
	}
	for _, tx := range local {
		put(tx)
	}

	out := make([]domain.LocalTransaction, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
