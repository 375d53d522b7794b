// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"

	"github.com/pdiddy/metasearch/internal/mixer"
	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Mix builds one page of a ready search with the named mixer, or the
// search's own mixer when name is empty. With opts.MarkRead the returned
// items are marked read in the store and in the page.
func (e *Engine) Mix(ctx context.Context, id, owner, name string, opts mixer.Options) (mixer.Page, error) {
	s, err := e.Get(ctx, id, owner)
	if err != nil {
		return mixer.Page{}, err
	}
	if !s.Status.IsReady() && s.Status != types.StatusRescoring {
		return mixer.Page{}, fmt.Errorf("%w: %s is %s", ErrNotReady, id, s.Status)
	}
	if name == "" {
		name = s.Mixer
	}
	m, err := mixer.Lookup(name)
	if err != nil {
		return mixer.Page{}, err
	}

	results, err := e.store.ListResults(ctx, id)
	if err != nil {
		return mixer.Page{}, err
	}
	page := m.Mix(s, orderResults(s, results), opts)

	if opts.MarkRead && len(page.Items) > 0 {
		refs := make([]store.RecordRef, 0, len(page.Items))
		for i := range page.Items {
			refs = append(refs, store.RecordRef{ResultID: page.Items[i].ResultID, Rank: page.Items[i].Rank})
			page.Items[i].Read = true
		}
		n, err := e.store.MarkRead(ctx, refs)
		if err != nil {
			return page, fmt.Errorf("marking results read: %w", err)
		}
		e.logger.Debug("marked read", "search_id", id, "records", n)
	}
	return page, nil
}
