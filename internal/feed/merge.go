package feed

import (
	"sort"

	"focusfriends/backend/internal/model"
)

const DefaultLimit = 20

// Merge folds incoming into existing keyed by event id, newer values
// winning, and returns at most limit events newest first. Events with equal
// timestamps are ordered by id descending so the result does not depend on
// arrival order.
func Merge(existing, incoming []model.FeedEvent, limit int) []model.FeedEvent {
	if limit <= 0 {
		limit = DefaultLimit
	}

	byID := make(map[string]model.FeedEvent, len(existing)+len(incoming))
	for _, evt := range existing {
		byID[evt.ID] = evt
	}
	for _, evt := range incoming {
		byID[evt.ID] = evt
	}

	merged := make([]model.FeedEvent, 0, len(byID))
	for _, evt := range byID {
		merged = append(merged, evt)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID > merged[j].ID
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
