package render

import (
	"context"
	"fmt"
	"sort"

	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/paths"
	"github.com/sirupsen/logrus"
)

type datasetSet struct {
	datasetID int64
	name      string
}

// request holds everything scoped to one render call. The maps memoize
// store reads; a present key with a nil value is a loaded empty result.
type request struct {
	ctx   context.Context
	r     *Renderer
	flags Flags
	buf   *cache.Buffer

	sets        map[int64][]model.SubmissionSet
	subs        map[int64][]model.Submission
	attachments map[int64][]model.Attachment
	placeCounts map[int64]int
	setCounts   map[int64]map[string]int
	datasetSubs map[datasetSet][]model.Submission
	owners      map[int64]model.Owner
	auths       map[int64][]model.SocialAuth
	groups      map[int64][]model.Group
	datasets    map[int64]model.Dataset
}

func (r *Renderer) newRequest(ctx context.Context, flags Flags) *request {
	return &request{
		ctx:         ctx,
		r:           r,
		flags:       flags,
		buf:         r.Buffer(),
		sets:        make(map[int64][]model.SubmissionSet),
		subs:        make(map[int64][]model.Submission),
		attachments: make(map[int64][]model.Attachment),
		placeCounts: make(map[int64]int),
		setCounts:   make(map[int64]map[string]int),
		datasetSubs: make(map[datasetSet][]model.Submission),
		owners:      make(map[int64]model.Owner),
		auths:       make(map[int64][]model.SocialAuth),
		groups:      make(map[int64][]model.Group),
		datasets:    make(map[int64]model.Dataset),
	}
}

func (q *request) render(e model.Entity) (Document, error) {
	switch v := e.(type) {
	case model.Owner:
		return q.user(v)
	case model.Dataset:
		return q.dataset(v)
	case model.Place:
		return q.place(v)
	case model.Submission:
		return q.submission(v)
	}
	return nil, fmt.Errorf("render: unsupported entity kind %s", e.Kind())
}

// url builds the identifier of route for e.
func (q *request) url(e model.Entity, route paths.Route) (string, error) {
	args, err := q.r.resolver.URLArgs(q.ctx, q.buf, e, route)
	if err != nil {
		return "", err
	}
	return q.r.builder.Build(route, args)
}

func (q *request) visible(subs []model.Submission) []model.Submission {
	if q.flags.IncludeInvisible {
		return subs
	}
	out := make([]model.Submission, 0, len(subs))
	for _, s := range subs {
		if s.Visible {
			out = append(out, s)
		}
	}
	return out
}

// ---- preload ----

// preload bulk-loads the children of entities and then warms the buffer
// with one batched fetch covering every path key the render will need.
// Load failures are only logged here; the per-item render hits them again
// and reports them for that item.
func (q *request) preload(entities []model.Entity) {
	var (
		places      []int64
		datasets    []int64
		things      []int64
		users       []int64
		keyEntities = make([]model.Entity, 0, len(entities))
	)
	submitter := func(id *int64) {
		if id != nil {
			users = append(users, *id)
		}
	}
	for _, e := range entities {
		switch v := e.(type) {
		case model.Owner:
			users = append(users, v.ID)
		case model.Place:
			places = append(places, v.ID)
			things = append(things, v.ID)
			submitter(v.SubmitterID)
		case model.Submission:
			things = append(things, v.ID)
			submitter(v.SubmitterID)
		case model.Dataset:
			datasets = append(datasets, v.ID)
		}
		keyEntities = append(keyEntities, e)
	}

	if err := q.loadSets(places...); err != nil {
		q.warn(err, "bulk load of submission sets failed")
	}
	var setIDs []int64
	for _, id := range places {
		for _, s := range q.sets[id] {
			setIDs = append(setIDs, s.ID)
			keyEntities = append(keyEntities, s)
		}
	}
	if err := q.loadSubmissions(setIDs...); err != nil {
		q.warn(err, "bulk load of submissions failed")
	}

	if err := q.loadCounts(datasets...); err != nil {
		q.warn(err, "bulk load of dataset counts failed")
	}

	if q.flags.Mode() == Detail {
		for _, id := range setIDs {
			for _, s := range q.visible(q.subs[id]) {
				things = append(things, s.ID)
				submitter(s.SubmitterID)
				keyEntities = append(keyEntities, s)
			}
		}
		for _, id := range datasets {
			for _, name := range sortedNames(q.setCounts[id]) {
				subs, err := q.datasetSubmissions(id, name)
				if err != nil {
					q.warn(err, "bulk load of dataset submissions failed")
					continue
				}
				for _, s := range q.visible(subs) {
					things = append(things, s.ID)
					submitter(s.SubmitterID)
					keyEntities = append(keyEntities, s)
				}
			}
		}
	}

	if err := q.loadAttachments(things...); err != nil {
		q.warn(err, "bulk load of attachments failed")
	}

	// Group datasets of every rendered user need their own path keys.
	for _, id := range unloaded(q.groups, users) {
		groups, err := q.ownerGroups(id)
		if err != nil {
			q.warn(err, "loading user groups failed")
			continue
		}
		for _, g := range groups {
			d, err := q.datasetByID(g.DatasetID)
			if err != nil {
				q.warn(err, "loading group dataset failed")
				continue
			}
			keyEntities = append(keyEntities, d)
		}
	}

	q.r.resolver.Preload(q.ctx, q.buf, keyEntities...)
}

func (q *request) warn(err error, msg string) {
	q.r.log.WithFields(logrus.Fields{"error": err}).Warn(msg)
}

// ---- memoized store reads ----

func (q *request) loadSets(placeIDs ...int64) error {
	missing := unloaded(q.sets, placeIDs)
	if len(missing) == 0 {
		return nil
	}
	found, err := q.r.store.SubmissionSets(q.ctx, missing...)
	if err != nil {
		return err
	}
	for _, id := range missing {
		q.sets[id] = found[id]
	}
	return nil
}

func (q *request) loadSubmissions(setIDs ...int64) error {
	missing := unloaded(q.subs, setIDs)
	if len(missing) == 0 {
		return nil
	}
	found, err := q.r.store.Submissions(q.ctx, missing...)
	if err != nil {
		return err
	}
	for _, id := range missing {
		q.subs[id] = found[id]
	}
	return nil
}

func (q *request) loadAttachments(thingIDs ...int64) error {
	missing := unloaded(q.attachments, thingIDs)
	if len(missing) == 0 {
		return nil
	}
	found, err := q.r.store.Attachments(q.ctx, missing...)
	if err != nil {
		return err
	}
	for _, id := range missing {
		q.attachments[id] = found[id]
	}
	return nil
}

func (q *request) loadCounts(datasetIDs ...int64) error {
	missing := unloaded(q.setCounts, datasetIDs)
	if len(missing) == 0 {
		return nil
	}
	places, err := q.r.store.PlaceCounts(q.ctx, q.flags.IncludeInvisible, missing...)
	if err != nil {
		return err
	}
	sets, err := q.r.store.SubmissionSetCounts(q.ctx, q.flags.IncludeInvisible, missing...)
	if err != nil {
		return err
	}
	for _, id := range missing {
		q.placeCounts[id] = places[id]
		q.setCounts[id] = sets[id]
	}
	return nil
}

func (q *request) datasetSubmissions(datasetID int64, name string) ([]model.Submission, error) {
	k := datasetSet{datasetID: datasetID, name: name}
	if subs, ok := q.datasetSubs[k]; ok {
		return subs, nil
	}
	subs, err := q.r.store.DatasetSubmissions(q.ctx, datasetID, name)
	if err != nil {
		return nil, err
	}
	q.datasetSubs[k] = subs
	return subs, nil
}

func (q *request) owner(id int64) (model.Owner, error) {
	if o, ok := q.owners[id]; ok {
		return o, nil
	}
	o, err := q.r.store.Owner(q.ctx, id)
	if err != nil {
		return model.Owner{}, err
	}
	q.owners[id] = o
	return o, nil
}

func (q *request) socialAuths(ownerID int64) ([]model.SocialAuth, error) {
	if auths, ok := q.auths[ownerID]; ok {
		return auths, nil
	}
	auths, err := q.r.store.SocialAuths(q.ctx, ownerID)
	if err != nil {
		return nil, err
	}
	q.auths[ownerID] = auths
	return auths, nil
}

func (q *request) ownerGroups(ownerID int64) ([]model.Group, error) {
	if groups, ok := q.groups[ownerID]; ok {
		return groups, nil
	}
	groups, err := q.r.store.Groups(q.ctx, ownerID)
	if err != nil {
		return nil, err
	}
	q.groups[ownerID] = groups
	return groups, nil
}

func (q *request) datasetByID(id int64) (model.Dataset, error) {
	if d, ok := q.datasets[id]; ok {
		return d, nil
	}
	d, err := q.r.store.Dataset(q.ctx, id)
	if err != nil {
		return model.Dataset{}, err
	}
	q.datasets[id] = d
	return d, nil
}

func unloaded[V any](memo map[int64]V, ids []int64) []int64 {
	var out []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := memo[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortedNames(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
