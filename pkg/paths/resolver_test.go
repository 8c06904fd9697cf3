package paths

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/i5heu/geohive/internal/testutil"
	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/cache/cachetest"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAncestors is a map-backed store.Ancestors that counts lookups.
type fakeAncestors struct {
	owners   map[int64]model.Owner
	datasets map[int64]model.Dataset
	places   map[int64]model.Place
	sets     map[int64]model.SubmissionSet
	subs     map[int64]model.Submission
	lookups  int
}

func newFake() *fakeAncestors {
	f := &fakeAncestors{
		owners:   map[int64]model.Owner{1: {ID: 1, Username: "alice"}},
		datasets: map[int64]model.Dataset{10: {ID: 10, OwnerID: 1, Slug: "trees"}},
		places:   map[int64]model.Place{},
		sets:     map[int64]model.SubmissionSet{100: {ID: 100, PlaceID: 7, Name: "comments"}},
		subs:     map[int64]model.Submission{},
	}
	f.places[7] = model.Place{SubmittedThing: model.SubmittedThing{ID: 7, DatasetID: 10, Visible: true}}
	f.subs[1000] = model.Submission{SubmittedThing: model.SubmittedThing{ID: 1000, DatasetID: 10}, SetID: 100}
	return f
}

func notFound(kind model.Kind, id int64) error {
	return &store.NotFoundError{Kind: kind, Ref: strconv.FormatInt(id, 10)}
}

func (f *fakeAncestors) Owner(_ context.Context, id int64) (model.Owner, error) {
	f.lookups++
	if o, ok := f.owners[id]; ok {
		return o, nil
	}
	return model.Owner{}, notFound(model.KindOwner, id)
}

func (f *fakeAncestors) Dataset(_ context.Context, id int64) (model.Dataset, error) {
	f.lookups++
	if d, ok := f.datasets[id]; ok {
		return d, nil
	}
	return model.Dataset{}, notFound(model.KindDataset, id)
}

func (f *fakeAncestors) Place(_ context.Context, id int64) (model.Place, error) {
	f.lookups++
	if p, ok := f.places[id]; ok {
		return p, nil
	}
	return model.Place{}, notFound(model.KindPlace, id)
}

func (f *fakeAncestors) SubmissionSet(_ context.Context, id int64) (model.SubmissionSet, error) {
	f.lookups++
	if s, ok := f.sets[id]; ok {
		return s, nil
	}
	return model.SubmissionSet{}, notFound(model.KindSubmissionSet, id)
}

func (f *fakeAncestors) Submission(_ context.Context, id int64) (model.Submission, error) {
	f.lookups++
	if s, ok := f.subs[id]; ok {
		return s, nil
	}
	return model.Submission{}, notFound(model.KindSubmission, id)
}

func newBuffer(t *testing.T, b cache.Backend) *cache.Buffer {
	return cache.NewBuffer(b, testutil.Logger(t), nil)
}

func TestResolve_DerivesAndCaches(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	r := NewResolver(f, testutil.Logger(t))
	shared := cache.NewMemory(0, 0)

	params, err := r.Resolve(ctx, newBuffer(t, shared), f.subs[1000])
	require.NoError(t, err)
	assert.Equal(t, Params{
		model.ParamOwnerUsername:     "alice",
		model.ParamDatasetSlug:       "trees",
		model.ParamPlaceID:           "7",
		model.ParamSubmissionSetName: "comments",
		model.ParamSubmissionID:      "1000",
	}, params)
	assert.Equal(t, 4, f.lookups, "set, place, dataset, owner")

	// A new request with the shared cache warm never walks the chain.
	f.lookups = 0
	again, err := r.Resolve(ctx, newBuffer(t, shared), f.subs[1000])
	require.NoError(t, err)
	assert.Equal(t, params, again)
	assert.Equal(t, 0, f.lookups)

	// Ancestors were cached on the way.
	_, ok, err := shared.Get(ctx, cache.Key(model.KindDataset, 10))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolve_OwnerBypassesCache(t *testing.T) {
	backend := cachetest.NewCounting(cache.NewMemory(0, 0))
	r := NewResolver(newFake(), testutil.Logger(t))

	params, err := r.Resolve(context.Background(), newBuffer(t, backend), model.Owner{ID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, Params{model.ParamOwnerUsername: "alice"}, params)
	assert.Zero(t, backend.Gets()+backend.GetManys()+backend.Sets())
}

func TestResolve_MissingAncestor(t *testing.T) {
	f := newFake()
	delete(f.owners, 1)
	r := NewResolver(f, testutil.Logger(t))

	_, err := r.Resolve(context.Background(), newBuffer(t, cache.NewMemory(0, 0)), f.places[7])
	var upe *UnresolvedPathError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, model.ParamOwnerUsername, upe.Param)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestResolve_CacheFailureFallsBack(t *testing.T) {
	f := newFake()
	r := NewResolver(f, testutil.Logger(t))

	params, err := r.Resolve(context.Background(), newBuffer(t, cachetest.Failing{}), f.places[7])
	require.NoError(t, err)
	assert.Equal(t, "7", params[model.ParamPlaceID])
}

func TestResolve_DiscardsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	shared := cache.NewMemory(0, 0)
	require.NoError(t, shared.Set(ctx, cache.Key(model.KindPlace, 7), []byte("garbage")))

	r := NewResolver(f, testutil.Logger(t))
	params, err := r.Resolve(ctx, newBuffer(t, shared), f.places[7])
	require.NoError(t, err)
	assert.Equal(t, "trees", params[model.ParamDatasetSlug])
}

type setGroup struct {
	model.Dataset
	name string
}

func (g setGroup) PathAttr(name string) (string, bool) {
	if name == model.ParamSubmissionSetName {
		return g.name, true
	}
	return g.Dataset.PathAttr(name)
}

func TestURLArgs_FallsBackToEntityAttrs(t *testing.T) {
	f := newFake()
	r := NewResolver(f, testutil.Logger(t))
	buf := newBuffer(t, cache.NewMemory(0, 0))

	args, err := r.URLArgs(context.Background(), buf, setGroup{Dataset: f.datasets[10], name: "comments"}, DatasetSubmissionList)
	require.NoError(t, err)
	assert.Equal(t, Params{
		model.ParamOwnerUsername:     "alice",
		model.ParamDatasetSlug:       "trees",
		model.ParamSubmissionSetName: "comments",
	}, args)

	_, err = r.URLArgs(context.Background(), buf, f.datasets[10], PlaceDetail)
	var upe *UnresolvedPathError
	require.True(t, errors.As(err, &upe))
	assert.Equal(t, model.ParamPlaceID, upe.Param)
}

func TestPreload_OneFetchForCollection(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	var places []model.Entity
	for i := int64(1); i <= 25; i++ {
		p := model.Place{SubmittedThing: model.SubmittedThing{ID: i, DatasetID: 10}}
		f.places[i] = p
		places = append(places, p)
	}
	// Duplicates and owners do not add keys.
	places = append(places, f.places[3], model.Owner{ID: 1, Username: "alice"})

	backend := cachetest.NewCounting(cache.NewMemory(0, 0))
	r := NewResolver(f, testutil.Logger(t))

	// Warm the shared cache.
	warm := newBuffer(t, backend)
	for _, p := range places {
		_, err := r.Resolve(ctx, warm, p)
		require.NoError(t, err)
	}

	backend.Reset()
	f.lookups = 0
	buf := newBuffer(t, backend)
	r.Preload(ctx, buf, places...)
	for _, p := range places {
		_, err := r.Resolve(ctx, buf, p)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), backend.GetManys())
	assert.Len(t, backend.Batches()[0], 25)
	assert.Zero(t, backend.Gets())
	assert.Zero(t, f.lookups)
}

func TestInvalidate_ForcesRederive(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	shared := cache.NewMemory(0, 0)
	r := NewResolver(f, testutil.Logger(t))

	_, err := r.Resolve(ctx, newBuffer(t, shared), f.places[7])
	require.NoError(t, err)

	ds := f.datasets[10]
	ds.Slug = "forest"
	f.datasets[10] = ds

	buf := newBuffer(t, shared)
	require.NoError(t, r.Invalidate(ctx, buf, ds, f.places[7]))

	params, err := r.Resolve(ctx, buf, f.places[7])
	require.NoError(t, err)
	assert.Equal(t, "forest", params[model.ParamDatasetSlug])
}

func TestURLBuilder_Build(t *testing.T) {
	b := URLBuilder{BaseURL: "http://example.test/"}
	u, err := b.Build(SubmissionList, Params{
		model.ParamOwnerUsername:     "alice",
		model.ParamDatasetSlug:       "trees",
		model.ParamPlaceID:           "7",
		model.ParamSubmissionSetName: "my comments",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/api/v2/alice/datasets/trees/places/7/my%20comments", u)

	_, err = b.Build(PlaceDetail, Params{model.ParamOwnerUsername: "alice"})
	assert.Error(t, err)

	_, err = b.Build(Route{Name: "nope"}, nil)
	assert.Error(t, err)
}
