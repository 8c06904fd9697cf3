package geohive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

const fixtureJSON = `{
  "owners": [{
    "username": "alice",
    "social_auths": [{"provider": "twitter", "extra_data": {"name": "Alice", "profile_image_url": "http://img.test/a_normal.png"}}],
    "datasets": [
      {
        "slug": "trees",
        "display_name": "Trees",
        "keys": ["k-1"],
        "groups": [{"name": "gardeners", "members": ["alice"]}],
        "places": [
          {
            "geometry": "POINT (13.4 52.5)",
            "species": "oak",
            "private_owner": "city",
            "attachments": [{"name": "photo", "file": "oak.jpg"}],
            "submission_sets": {
              "comments": [{"comment": "big"}, {"comment": "spam", "visible": false}],
              "support": [{"type": "like"}]
            }
          },
          {"geometry": {"type": "Point", "coordinates": [1, 2]}, "visible": false}
        ]
      },
      {"slug": "benches", "places": [{"material": "wood"}]}
    ]
  }]
}`

func startedWithFixture(t *testing.T) *GeoHive {
	t.Helper()
	ctx := context.Background()
	g, err := New(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, g.Start(ctx))
	t.Cleanup(func() { _ = g.Close(ctx) })

	stats, err := g.Seed(ctx, strings.NewReader(fixtureJSON))
	require.NoError(t, err)
	assert.Equal(t, SeedStats{Owners: 1, Datasets: 2, Places: 3, Submissions: 3}, stats)
	return g
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	g := startedWithFixture(t)
	st, err := g.Store()
	require.NoError(t, err)

	ds, err := st.DatasetBySlug(ctx, "alice", "trees")
	require.NoError(t, err)
	places, err := st.Places(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, places, 2)

	oak := places[0]
	assert.True(t, oak.Visible)
	require.NotNil(t, oak.SubmitterID)
	assert.Equal(t, ds.OwnerID, *oak.SubmitterID)
	assert.JSONEq(t, `{"species":"oak","private_owner":"city"}`, oak.Data)
	assert.False(t, places[1].Visible)

	atts, err := st.Attachments(ctx, oak.ID)
	require.NoError(t, err)
	require.Len(t, atts[oak.ID], 1)
	assert.Equal(t, "oak.jpg", atts[oak.ID][0].File)

	sets, err := st.SubmissionSets(ctx, oak.ID)
	require.NoError(t, err)
	assert.Len(t, sets[oak.ID], 2)

	keys, err := st.APIKeys(ctx, ds.ID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "k-1", keys[0].Key)
}

func TestSeed_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	g, err := New(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, g.Start(ctx))
	defer g.Close(ctx)

	_, err = g.Seed(ctx, strings.NewReader(`{"owners": [`))
	assert.Error(t, err)

	_, err = g.Seed(ctx, strings.NewReader(`{"owners": [{"username": "bob", "datasets": [{"slug": "x", "places": [{"geometry": "NOT WKT"}]}]}]}`))
	assert.Error(t, err)

	_, err = g.Seed(ctx, strings.NewReader(`{"owners": [{"username": "carol", "datasets": [{"slug": "x", "groups": [{"name": "g", "members": ["nobody"]}]}]}]}`))
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	g := startedWithFixture(t)

	var buf bytes.Buffer
	require.NoError(t, g.Dump(ctx, "alice", &buf, DumpOptions{Workers: 2}))

	xr, err := xz.NewReader(&buf)
	require.NoError(t, err)
	var out struct {
		Owner    map[string]any `json:"owner"`
		Datasets []struct {
			Dataset map[string]any   `json:"dataset"`
			Places  []map[string]any `json:"places"`
		} `json:"datasets"`
	}
	require.NoError(t, json.NewDecoder(xr).Decode(&out))

	assert.Equal(t, "alice", out.Owner["username"])
	assert.Equal(t, "Alice", out.Owner["name"])
	assert.Equal(t, []any{map[string]any{
		"name":    "gardeners",
		"dataset": "http://api.test/api/v2/alice/datasets/trees",
	}}, out.Owner["groups"])
	require.Len(t, out.Datasets, 2)
	assert.Equal(t, "trees", out.Datasets[0].Dataset["slug"])
	assert.Equal(t, "benches", out.Datasets[1].Dataset["slug"])

	trees := out.Datasets[0].Places
	require.Len(t, trees, 1)
	assert.Equal(t, "oak", trees[0]["species"])
	assert.NotContains(t, trees[0], "private_owner")
	assert.Equal(t, "POINT (13.4 52.5)", trees[0]["geometry"])

	buf.Reset()
	require.Error(t, g.Dump(ctx, "nobody", &buf, DumpOptions{}))
}

func TestRenameDataset_InvalidatesDescendants(t *testing.T) {
	ctx := context.Background()
	g := startedWithFixture(t)
	st, err := g.Store()
	require.NoError(t, err)
	r, err := g.Renderer()
	require.NoError(t, err)

	ds, err := st.DatasetBySlug(ctx, "alice", "trees")
	require.NoError(t, err)
	places, err := st.Places(ctx, ds.ID)
	require.NoError(t, err)
	oak := places[0]

	doc, err := r.RenderOne(ctx, oak, render.Flags{})
	require.NoError(t, err)
	assert.Contains(t, doc["url"], "/datasets/trees/places/")

	require.NoError(t, g.RenameDataset(ctx, "alice", "trees", "forest"))

	doc, err = r.RenderOne(ctx, oak, render.Flags{IncludeSubmissions: true})
	require.NoError(t, err)
	assert.Contains(t, doc["url"], "/datasets/forest/places/")
	comments := doc["submission_sets"].(render.Document)["comments"].([]render.Document)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0]["url"], "/datasets/forest/places/")

	n, err := g.InvalidateDataset(ctx, "alice", "forest")
	require.NoError(t, err)
	// dataset, 2 places, 2 sets, 3 submissions
	assert.Equal(t, 8, n)
}

func TestRenameSubmissionSet(t *testing.T) {
	ctx := context.Background()
	g := startedWithFixture(t)
	st, err := g.Store()
	require.NoError(t, err)
	r, err := g.Renderer()
	require.NoError(t, err)

	ds, err := st.DatasetBySlug(ctx, "alice", "trees")
	require.NoError(t, err)
	places, err := st.Places(ctx, ds.ID)
	require.NoError(t, err)
	oak := places[0]

	_, err = r.RenderOne(ctx, oak, render.Flags{IncludeSubmissions: true})
	require.NoError(t, err)

	require.NoError(t, g.RenameSubmissionSet(ctx, oak.ID, "comments", "notes"))

	set, err := st.SubmissionSetByName(ctx, oak.ID, "notes")
	require.NoError(t, err)
	subs, err := st.Submissions(ctx, set.ID)
	require.NoError(t, err)
	doc, err := r.RenderOne(ctx, subs[set.ID][0], render.Flags{})
	require.NoError(t, err)
	assert.Contains(t, doc["url"], fmt.Sprintf("/places/%d/notes/", oak.ID))

	assert.Error(t, g.RenameSubmissionSet(ctx, oak.ID, "comments", "again"))
}

func TestFlushCache(t *testing.T) {
	ctx := context.Background()
	g := startedWithFixture(t)
	st, err := g.Store()
	require.NoError(t, err)
	r, err := g.Renderer()
	require.NoError(t, err)
	backend, err := g.Cache()
	require.NoError(t, err)

	ds, err := st.DatasetBySlug(ctx, "alice", "trees")
	require.NoError(t, err)
	_, err = r.RenderOne(ctx, ds, render.Flags{})
	require.NoError(t, err)

	key := cache.Key(model.KindDataset, ds.ID)
	_, found, err := backend.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, g.FlushCache(ctx))
	_, found, err = backend.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}
