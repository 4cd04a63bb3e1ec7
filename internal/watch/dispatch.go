package watch

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// DispatchOrdered delivers candidates in ascending identifier order,
// advancing the cursor only after each successful hand-off. Candidates at or
// below the cursor are skipped. On a dispatch failure the scan stops at the
// failing item: the cursor keeps the last delivered identifier, so the item
// and anything after it are re-offered on the next trigger.
//
// It returns the number of notifications delivered.
func DispatchOrdered(ctx context.Context, d Dispatcher, cursor *CursorTracker, candidates []Candidate) (int, error) {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UID < sorted[j].UID })

	delivered := 0
	for _, c := range sorted {
		if c.UID <= cursor.Last() {
			continue
		}
		if err := d.Notify(ctx, c); err != nil {
			return delivered, fmt.Errorf("dispatch uid %d: %w", c.UID, err)
		}
		cursor.Advance(c.UID)
		delivered++
	}
	return delivered, nil
}

// DispatchNovel delivers candidates whose identifiers are not in the dedup
// cache, in the order received, inserting each identifier after a successful
// hand-off. A failed dispatch is logged and skipped without inserting, so
// the item is offered again on the next poll while it keeps appearing in
// listings. Identifiers evicted from the cache may be re-notified; that is
// the accepted cost of bounded memory.
//
// It returns the number of notifications delivered.
func DispatchNovel(ctx context.Context, d Dispatcher, cache *DedupCache, candidates []Candidate) int {
	delivered := 0
	for _, c := range candidates {
		if cache.Seen(c.ID) {
			continue
		}
		if err := d.Notify(ctx, c); err != nil {
			log.Warn().Err(err).Str("id", c.ID).Msg("Notification failed, will retry next poll")
			continue
		}
		cache.Add(c.ID)
		delivered++
	}
	return delivered
}
