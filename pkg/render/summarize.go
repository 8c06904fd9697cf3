package render

import (
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/paths"
	"github.com/sirupsen/logrus"
)

// setGroup stands in for the submissions of one named set across a whole
// dataset. It resolves through the dataset's cache entry and supplies the
// set name itself.
type setGroup struct {
	model.Dataset
	name string
}

func (g setGroup) PathAttr(name string) (string, bool) {
	if name == model.ParamSubmissionSetName {
		return g.name, g.name != ""
	}
	return g.Dataset.PathAttr(name)
}

func summary(count int, url string) Document {
	return Document{"count": count, "url": url}
}

// omit logs a child group dropped from its parent document.
func (q *request) omit(parent model.Entity, group string, err error) {
	q.r.log.WithFields(logrus.Fields{
		"kind":  parent.Kind(),
		"pk":    parent.PK(),
		"group": group,
		"error": err,
	}).Warn("omitting child group")
}

// placeSets renders the submission sets of a place, one entry per set with
// at least one submission passing the visibility filter.
func (q *request) placeSets(p model.Place) (Document, error) {
	if err := q.loadSets(p.ID); err != nil {
		return nil, err
	}
	sets := q.sets[p.ID]
	ids := make([]int64, len(sets))
	for i, s := range sets {
		ids[i] = s.ID
	}
	if err := q.loadSubmissions(ids...); err != nil {
		return nil, err
	}

	out := make(Document, len(sets))
	for _, s := range sets {
		subs := q.visible(q.subs[s.ID])
		if len(subs) == 0 {
			continue
		}
		group, err := q.group(s, paths.SubmissionList, len(subs), subs)
		if err != nil {
			if !perItem(err) {
				return nil, err
			}
			q.omit(p, s.Name, err)
			continue
		}
		out[s.Name] = group
	}
	return out, nil
}

// datasetSets renders, per set name, the submissions of a dataset across
// all of its places.
func (q *request) datasetSets(d model.Dataset) (Document, error) {
	if err := q.loadCounts(d.ID); err != nil {
		return nil, err
	}
	counts := q.setCounts[d.ID]

	out := make(Document, len(counts))
	for _, name := range sortedNames(counts) {
		if counts[name] == 0 {
			continue
		}
		var subs []model.Submission
		if q.flags.Mode() == Detail {
			all, err := q.datasetSubmissions(d.ID, name)
			if err != nil {
				return nil, err
			}
			subs = q.visible(all)
		}
		group, err := q.group(setGroup{Dataset: d, name: name}, paths.DatasetSubmissionList, counts[name], subs)
		if err != nil {
			if !perItem(err) {
				return nil, err
			}
			q.omit(d, name, err)
			continue
		}
		out[name] = group
	}
	return out, nil
}

// datasetPlaces is always a summary, even for an empty dataset.
func (q *request) datasetPlaces(d model.Dataset) (Document, error) {
	if err := q.loadCounts(d.ID); err != nil {
		return nil, err
	}
	url, err := q.url(d, paths.PlaceList)
	if err != nil {
		return nil, err
	}
	return summary(q.placeCounts[d.ID], url), nil
}

// group renders one child group in the request's mode. The group
// identifier is resolved in both modes so that the same groups are omitted
// whichever mode is selected. In detail mode a submission that fails on
// its own keeps its slot as an error marker.
func (q *request) group(e model.Entity, route paths.Route, count int, subs []model.Submission) (any, error) {
	url, err := q.url(e, route)
	if err != nil {
		return nil, err
	}
	if q.flags.Mode() == Summary {
		return summary(count, url), nil
	}

	docs := make([]Document, 0, len(subs))
	for _, s := range subs {
		doc, err := q.submission(s)
		if err != nil {
			if !perItem(err) {
				return nil, err
			}
			q.r.log.WithFields(logrus.Fields{
				"pk":    s.ID,
				"error": err,
			}).Warn("submission failed to render")
			doc = Document{"error": err.Error()}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
