package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i5heu/geohive/pkg/blob"
	"github.com/i5heu/geohive/pkg/geometry"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/paths"
)

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (q *request) user(o model.Owner) (Document, error) {
	auths, err := q.socialAuths(o.ID)
	if err != nil {
		return nil, err
	}
	info, data := q.r.userData(auths)
	groups, err := q.userGroups(o)
	if err != nil {
		return nil, err
	}
	return Document{
		"id":         o.ID,
		"username":   o.Username,
		"name":       data.FullName(info),
		"avatar_url": data.AvatarURL(info),
		"bio":        data.Bio(info),
		"groups":     groups,
	}, nil
}

// userGroups renders the groups o belongs to. A group whose dataset URL
// cannot be built is left out.
func (q *request) userGroups(o model.Owner) ([]Document, error) {
	groups, err := q.ownerGroups(o.ID)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(groups))
	for _, g := range groups {
		d, err := q.datasetByID(g.DatasetID)
		if err != nil {
			return nil, err
		}
		url, err := q.url(d, paths.DatasetDetail)
		if err != nil {
			if !perItem(err) {
				return nil, err
			}
			q.omit(o, g.Name, err)
			continue
		}
		docs = append(docs, Document{"name": g.Name, "dataset": url})
	}
	return docs, nil
}

// submitter returns the rendered user, or nil for anonymous submissions.
func (q *request) submitter(id *int64) (any, error) {
	if id == nil {
		return nil, nil
	}
	o, err := q.owner(*id)
	if err != nil {
		return nil, err
	}
	return q.user(o)
}

func (q *request) attachmentDocs(thingID int64) ([]Document, error) {
	if err := q.loadAttachments(thingID); err != nil {
		return nil, err
	}
	atts := q.attachments[thingID]
	docs := make([]Document, len(atts))
	for i, a := range atts {
		file := a.File
		if q.r.mediaURL != "" {
			file = strings.TrimRight(q.r.mediaURL, "/") + "/" + strings.TrimLeft(a.File, "/")
		}
		docs[i] = Document{
			"created_datetime": timestamp(a.CreatedAt),
			"updated_datetime": timestamp(a.UpdatedAt),
			"file":             file,
			"name":             a.Name,
		}
	}
	return docs, nil
}

// thing fills in the fields places and submissions share and merges the
// attribute blob underneath them.
func (q *request) thing(t model.SubmittedThing, structured map[string]any) (Document, error) {
	atts, err := q.attachmentDocs(t.ID)
	if err != nil {
		return nil, err
	}
	submitter, err := q.submitter(t.SubmitterID)
	if err != nil {
		return nil, err
	}
	structured["id"] = t.ID
	structured["attachments"] = atts
	structured["submitter"] = submitter
	structured["visible"] = t.Visible
	structured["created_datetime"] = timestamp(t.CreatedAt)
	structured["updated_datetime"] = timestamp(t.UpdatedAt)

	doc, err := blob.Flatten(structured, t.Data, q.flags.IncludePrivate)
	if err != nil {
		return nil, fmt.Errorf("%w (thing %d)", err, t.ID)
	}
	return Document(doc), nil
}

func (q *request) place(p model.Place) (Document, error) {
	url, err := q.url(p, paths.PlaceDetail)
	if err != nil {
		return nil, err
	}
	wkt, err := geometry.WKT(p.Geometry)
	if err != nil {
		return nil, fmt.Errorf("place %d geometry: %w", p.ID, err)
	}

	doc, err := q.thing(p.SubmittedThing, map[string]any{
		"url":      url,
		"geometry": wkt,
		"dataset":  p.DatasetID,
	})
	if err != nil {
		return nil, err
	}

	sets, err := q.placeSets(p)
	if err != nil {
		return nil, err
	}
	doc["submission_sets"] = sets
	if p.Distance != nil {
		doc["distance"] = strconv.FormatFloat(*p.Distance, 'f', -1, 64) + " m"
	}
	return doc, nil
}

func (q *request) submission(s model.Submission) (Document, error) {
	structured := make(map[string]any, 10)
	for field, route := range map[string]paths.Route{
		"url":     paths.SubmissionDetail,
		"dataset": paths.DatasetDetail,
		"set":     paths.SubmissionList,
		"place":   paths.PlaceDetail,
	} {
		u, err := q.url(s, route)
		if err != nil {
			return nil, err
		}
		structured[field] = u
	}
	return q.thing(s.SubmittedThing, structured)
}

func (q *request) dataset(d model.Dataset) (Document, error) {
	url, err := q.url(d, paths.DatasetDetail)
	if err != nil {
		return nil, err
	}
	keys, err := q.url(d, paths.APIKeyList)
	if err != nil {
		return nil, err
	}

	doc := Document{
		"url":          url,
		"id":           d.ID,
		"slug":         d.Slug,
		"display_name": d.DisplayName,
		"owner":        nil,
		"keys":         Document{"url": keys},
	}
	if d.OwnerID != 0 {
		owner, err := q.url(d, paths.UserDetail)
		if err != nil {
			return nil, err
		}
		doc["owner"] = owner
	}

	places, err := q.datasetPlaces(d)
	if err != nil {
		return nil, err
	}
	doc["places"] = places

	sets, err := q.datasetSets(d)
	if err != nil {
		return nil, err
	}
	doc["submission_sets"] = sets
	return doc, nil
}

// actionTarget loads the place or submission an action points at.
func (q *request) actionTarget(a model.Action) (model.Entity, error) {
	switch {
	case a.PlaceID != nil:
		p, err := q.r.store.Place(q.ctx, *a.PlaceID)
		if err != nil {
			return nil, err
		}
		return p, nil
	case a.SubmissionID != nil:
		s, err := q.r.store.Submission(q.ctx, *a.SubmissionID)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("action %d has no target", a.ID)
}

func (q *request) action(a model.Action, target model.Entity) (Document, error) {
	targetType := "place"
	if s, ok := target.(model.Submission); ok {
		set, err := q.r.store.SubmissionSet(q.ctx, s.SetID)
		if err != nil {
			return nil, err
		}
		targetType = set.Name
	}
	doc, err := q.render(target)
	if err != nil {
		return nil, err
	}
	return Document{
		"id":               a.ID,
		"created_datetime": timestamp(a.CreatedAt),
		"target_type":      targetType,
		"target":           doc,
	}, nil
}
