package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/illegalcall/profile-resolver/internal/models"
)

// BatchItem is the outcome for one username of a batch.
type BatchItem struct {
	Username string
	Result   *Result
	Err      error
}

// ResolveBatch resolves usernames with at most concurrency resolutions in
// flight. Items keep the input order. Per-username failures are reported in
// the item; the returned error is only set when ctx ends the batch early.
func (m *Manager) ResolveBatch(ctx context.Context, platform models.Platform, preferred models.ProviderSource, usernames []string, concurrency int) ([]BatchItem, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	items := make([]BatchItem, len(usernames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, username := range usernames {
		items[i].Username = username
		g.Go(func() error {
			res, err := m.ResolveDetailed(gctx, Request{Username: username, Platform: platform, Preferred: preferred})
			items[i].Result, items[i].Err = res, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}
