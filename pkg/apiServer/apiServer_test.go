package apiServer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/i5heu/geohive/internal/testutil"
	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/paths"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "http://api.test"

type fixture struct {
	server *Server
	store  *sqlite.Store

	place     model.Place
	hidden    model.Place
	comment   model.Submission
	actionID  int64
	otherSlug string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	log := testutil.Logger(t)

	st, err := sqlite.Open(sqlite.Config{Path: filepath.Join(t.TempDir(), "geohive.db"), Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	owner, err := st.CreateOwner(ctx, model.Owner{Username: "alice"})
	require.NoError(t, err)
	ds, err := st.CreateDataset(ctx, model.Dataset{OwnerID: owner.ID, Slug: "trees", DisplayName: "Trees"})
	require.NoError(t, err)
	other, err := st.CreateDataset(ctx, model.Dataset{OwnerID: owner.ID, Slug: "benches"})
	require.NoError(t, err)

	f := &fixture{store: st, otherSlug: other.Slug}
	f.place, err = st.CreatePlace(ctx, model.Place{SubmittedThing: model.SubmittedThing{
		DatasetID: ds.ID, Visible: true, Data: `{"notes":"oak","private_phone":"555"}`,
	}})
	require.NoError(t, err)
	f.hidden, err = st.CreatePlace(ctx, model.Place{SubmittedThing: model.SubmittedThing{DatasetID: ds.ID}})
	require.NoError(t, err)

	set, err := st.EnsureSubmissionSet(ctx, f.place.ID, "comments")
	require.NoError(t, err)
	f.comment, err = st.CreateSubmission(ctx, model.Submission{
		SubmittedThing: model.SubmittedThing{DatasetID: ds.ID, Visible: true, Data: `{"comment":"nice"}`},
		SetID:          set.ID,
	})
	require.NoError(t, err)
	_, err = st.CreateSubmission(ctx, model.Submission{
		SubmittedThing: model.SubmittedThing{DatasetID: ds.ID, Data: `{"comment":"spam"}`},
		SetID:          set.ID,
	})
	require.NoError(t, err)

	action, err := st.CreateAction(ctx, model.Action{PlaceID: &f.place.ID})
	require.NoError(t, err)
	f.actionID = action.ID

	r := render.New(render.Config{
		Store:   st,
		Cache:   cache.NewMemory(0, 0),
		Builder: paths.URLBuilder{BaseURL: baseURL},
		Logger:  log,
	})
	f.server = New(st, r, append([]Option{WithLogger(log)}, opts...)...)
	return f
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (f *fixture) placePath(p model.Place) string {
	return fmt.Sprintf("/api/v2/alice/datasets/trees/places/%d", p.ID)
}

func TestFlagsFromQuery(t *testing.T) {
	q, err := url.ParseQuery("include_private&include_submissions=0")
	require.NoError(t, err)
	assert.Equal(t, render.Flags{IncludePrivate: true, IncludeSubmissions: true}, flagsFromQuery(q))
	assert.Equal(t, render.Flags{}, flagsFromQuery(url.Values{}))
}

func TestOwnerAndDataset(t *testing.T) {
	f := newFixture(t)

	var user map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice", &user))
	assert.Equal(t, "alice", user["username"])

	var ds map[string]any
	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice/datasets/trees", &ds))
	assert.Equal(t, baseURL+"/api/v2/alice/datasets/trees", ds["url"])
	assert.Equal(t, baseURL+"/api/v2/alice", ds["owner"])
	assert.Equal(t, map[string]any{
		"count": float64(1),
		"url":   baseURL + "/api/v2/alice/datasets/trees/places",
	}, ds["places"])

	var list collection
	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice/datasets", &list))
	assert.Equal(t, 2, list.Metadata.Length)
	assert.Len(t, list.Results, 2)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	var body errorBody
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v2/bob", &body))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v2/alice/datasets/nope", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v2/alice/datasets/trees/places/abc", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v2/alice/datasets/trees/plaices/1", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/nothing/here", nil))

	// The place exists, but not in this dataset.
	path := strings.Replace(f.placePath(f.place), "trees", f.otherSlug, 1)
	assert.Equal(t, http.StatusNotFound, f.get(t, path, nil))
}

func TestPlaces_Visibility(t *testing.T) {
	f := newFixture(t)

	var list collection
	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice/datasets/trees/places", &list))
	require.Equal(t, 1, list.Metadata.Length)
	doc := list.Results[0].(map[string]any)
	assert.Equal(t, "oak", doc["notes"])
	assert.NotContains(t, doc, "private_phone")

	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice/datasets/trees/places?include_invisible", &list))
	assert.Equal(t, 2, list.Metadata.Length)

	assert.Equal(t, http.StatusNotFound, f.get(t, f.placePath(f.hidden), nil))
	assert.Equal(t, http.StatusOK, f.get(t, f.placePath(f.hidden)+"?include_invisible", nil))
}

func TestPlace_Modes(t *testing.T) {
	f := newFixture(t)

	var doc map[string]any
	require.Equal(t, http.StatusOK, f.get(t, f.placePath(f.place), &doc))
	assert.Equal(t, map[string]any{
		"comments": map[string]any{
			"count": float64(1),
			"url":   baseURL + f.placePath(f.place) + "/comments",
		},
	}, doc["submission_sets"])

	require.Equal(t, http.StatusOK, f.get(t, f.placePath(f.place)+"?include_submissions&include_private", &doc))
	assert.Equal(t, "555", doc["private_phone"])
	sets := doc["submission_sets"].(map[string]any)
	comments := sets["comments"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, "nice", comments[0].(map[string]any)["comment"])
}

func TestSubmissions(t *testing.T) {
	f := newFixture(t)

	var list collection
	require.Equal(t, http.StatusOK, f.get(t, f.placePath(f.place)+"/comments", &list))
	assert.Equal(t, 1, list.Metadata.Length)

	require.Equal(t, http.StatusOK, f.get(t, "/api/v2/alice/datasets/trees/comments?include_invisible", &list))
	assert.Equal(t, 2, list.Metadata.Length)

	var doc map[string]any
	path := fmt.Sprintf("%s/comments/%d", f.placePath(f.place), f.comment.ID)
	require.Equal(t, http.StatusOK, f.get(t, path, &doc))
	assert.Equal(t, baseURL+path, doc["url"])
	assert.Equal(t, baseURL+f.placePath(f.place), doc["place"])

	assert.Equal(t, http.StatusNotFound, f.get(t, f.placePath(f.place)+"/support", nil))
}

func TestKeysNotServed(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusForbidden, f.get(t, "/api/v2/alice/datasets/trees/keys", nil))
}

func TestAction(t *testing.T) {
	f := newFixture(t)

	var doc map[string]any
	require.Equal(t, http.StatusOK, f.get(t, fmt.Sprintf("/actions/%d", f.actionID), &doc))
	assert.Equal(t, "place", doc["target_type"])
	target := doc["target"].(map[string]any)
	assert.Equal(t, baseURL+f.placePath(f.place), target["url"])

	assert.Equal(t, http.StatusNotFound, f.get(t, "/actions/999", nil))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v2/alice", nil)
	req.Header.Set("Origin", "https://map.example.org")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://map.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(reg))

	f.get(t, "/api/v2/alice", nil)
	f.get(t, "/api/v2/bob", nil)

	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `geohive_http_requests_total{code="200",route="/api/v2/:owner"} 1`)
	assert.Contains(t, body, `geohive_http_requests_total{code="404",route="/api/v2/:owner"} 1`)
}
