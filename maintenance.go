package geohive

import (
	"context"
	"fmt"

	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/sirupsen/logrus"
)

// datasetTree returns ds followed by every place, submission set and
// submission below it.
func datasetTree(ctx context.Context, st store.Reader, ds model.Dataset) ([]model.Entity, error) {
	places, err := st.Places(ctx, ds.ID)
	if err != nil {
		return nil, err
	}
	out := []model.Entity{ds}
	placeIDs := make([]int64, len(places))
	for i, p := range places {
		out = append(out, p)
		placeIDs[i] = p.ID
	}

	sets, err := st.SubmissionSets(ctx, placeIDs...)
	if err != nil {
		return nil, err
	}
	var setIDs []int64
	for _, id := range placeIDs {
		for _, s := range sets[id] {
			out = append(out, s)
			setIDs = append(setIDs, s.ID)
		}
	}
	subs, err := st.Submissions(ctx, setIDs...)
	if err != nil {
		return nil, err
	}
	for _, id := range setIDs {
		for _, s := range subs[id] {
			out = append(out, s)
		}
	}
	return out, nil
}

func setTree(ctx context.Context, st store.Reader, set model.SubmissionSet) ([]model.Entity, error) {
	subs, err := st.Submissions(ctx, set.ID)
	if err != nil {
		return nil, err
	}
	out := []model.Entity{set}
	for _, s := range subs[set.ID] {
		out = append(out, s)
	}
	return out, nil
}

func (g *GeoHive) invalidate(ctx context.Context, entities []model.Entity) error {
	r, err := g.Renderer()
	if err != nil {
		return err
	}
	if err := r.Resolver().Invalidate(ctx, r.Buffer(), entities...); err != nil {
		return fmt.Errorf("invalidate path cache: %w", err)
	}
	return nil
}

// InvalidateDataset drops the cached path parameters of a dataset and
// everything below it. It returns the number of entities affected.
func (g *GeoHive) InvalidateDataset(ctx context.Context, owner, slug string) (int, error) {
	st, err := g.Store()
	if err != nil {
		return 0, err
	}
	ds, err := st.DatasetBySlug(ctx, owner, slug)
	if err != nil {
		return 0, err
	}
	tree, err := datasetTree(ctx, st, ds)
	if err != nil {
		return 0, err
	}
	return len(tree), g.invalidate(ctx, tree)
}

// RenameDataset changes a dataset's slug and drops the cached parameters
// of the dataset and its descendants.
func (g *GeoHive) RenameDataset(ctx context.Context, owner, slug, newSlug string) error {
	st, err := g.Store()
	if err != nil {
		return err
	}
	ds, err := st.DatasetBySlug(ctx, owner, slug)
	if err != nil {
		return err
	}
	// Collect first: the tree is keyed by ids, which the rename keeps.
	tree, err := datasetTree(ctx, st, ds)
	if err != nil {
		return err
	}
	if err := st.RenameDataset(ctx, ds.ID, newSlug); err != nil {
		return err
	}
	g.log.WithFields(logrus.Fields{
		"owner":    owner,
		"from":     slug,
		"to":       newSlug,
		"entities": len(tree),
	}).Info("dataset renamed")
	return g.invalidate(ctx, tree)
}

// RenameSubmissionSet renames the set name on placeID and drops the cached
// parameters of the set and its submissions.
func (g *GeoHive) RenameSubmissionSet(ctx context.Context, placeID int64, name, newName string) error {
	st, err := g.Store()
	if err != nil {
		return err
	}
	set, err := st.SubmissionSetByName(ctx, placeID, name)
	if err != nil {
		return err
	}
	tree, err := setTree(ctx, st, set)
	if err != nil {
		return err
	}
	if err := st.RenameSubmissionSet(ctx, set.ID, newName); err != nil {
		return err
	}
	g.log.WithFields(logrus.Fields{
		"place":    placeID,
		"from":     name,
		"to":       newName,
		"entities": len(tree),
	}).Info("submission set renamed")
	return g.invalidate(ctx, tree)
}

// FlushCache drops every cached path parameter.
func (g *GeoHive) FlushCache(ctx context.Context) error {
	backend, err := g.Cache()
	if err != nil {
		return err
	}
	return cache.Flush(ctx, backend)
}
