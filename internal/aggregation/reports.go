package aggregation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/project-tally/internal/core/changeset"
	"github.com/aevon-lab/project-tally/internal/core/content"
	"github.com/aevon-lab/project-tally/internal/core/storage"
)

// RemovalsRecorded resolves the open reports of things a moderator removed.
// Restores are ignored. When one statement removes a thing more than once,
// the first removal (lowest id) names the resolver.
func (e *Engine) RemovalsRecorded(ctx context.Context, store storage.AggregateStore, kind content.Kind, t changeset.Transition[content.Removal]) error {
	first := make(map[int64]content.Removal)
	for _, r := range t.Added {
		if !r.Removed {
			continue
		}
		if cur, ok := first[r.ThingID]; !ok || r.ID < cur.ID {
			first[r.ThingID] = r
		}
	}
	if len(first) == 0 {
		return nil
	}

	resolutions := make([]storage.ReportResolution, 0, len(first))
	for _, thingID := range changeset.SortedKeys(first) {
		resolutions = append(resolutions, storage.ReportResolution{
			ThingID:    thingID,
			ResolverID: first[thingID].ModPersonID,
		})
	}

	resolved, err := store.ResolveReports(ctx, kind, resolutions, e.now().UTC())
	if err != nil {
		return fmt.Errorf("%s removals recorded: resolve reports: %w", kind, err)
	}

	slog.Debug("[Engine] Resolved reports for removed content",
		"kind", kind,
		"things", len(resolutions),
		"reports", resolved)
	return nil
}
