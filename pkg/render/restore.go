package render

import (
	"fmt"

	"github.com/i5heu/geohive/pkg/blob"
	"github.com/i5heu/geohive/pkg/geometry"
	"github.com/i5heu/geohive/pkg/model"
)

// Field names a client may send that map onto stored fields. Everything
// else, "data" included, lands in the attribute blob. Read-only fields are
// listed so that echoing a rendered document back does not copy them into
// the blob.
var (
	placeFields = blob.NewFieldSet(
		"url", "id", "geometry", "dataset", "attachments", "submitter", "visible",
		"created_datetime", "updated_datetime", "submission_sets", "distance",
	)
	submissionFields = blob.NewFieldSet(
		"url", "id", "dataset", "set", "place", "attachments", "submitter", "visible",
		"created_datetime", "updated_datetime",
	)

	thingDefaults = map[string]any{
		"visible": true,
	}
)

// RestorePlace applies input to base. Without partial, omitted fields get
// their defaults; with partial, base keeps every field input leaves out and
// input's attributes are merged into base's blob. user becomes the
// submitter unless input names one.
func RestorePlace(base model.Place, input map[string]any, partial bool, user *int64) (model.Place, error) {
	structured, attrs := blob.Split(input, placeFields, thingDefaults, partial)

	if raw, ok := structured["geometry"]; ok {
		g, err := geometry.FromValue(raw)
		if err != nil {
			return model.Place{}, err
		}
		base.Geometry = g
	} else if !partial || base.Geometry == nil {
		base.Geometry = geometry.Default()
	}

	thing, err := restoreThing(base.SubmittedThing, structured, attrs, partial, user)
	if err != nil {
		return model.Place{}, err
	}
	base.SubmittedThing = thing
	return base, nil
}

// RestoreSubmission is RestorePlace for submissions.
func RestoreSubmission(base model.Submission, input map[string]any, partial bool, user *int64) (model.Submission, error) {
	structured, attrs := blob.Split(input, submissionFields, thingDefaults, partial)

	thing, err := restoreThing(base.SubmittedThing, structured, attrs, partial, user)
	if err != nil {
		return model.Submission{}, err
	}
	base.SubmittedThing = thing
	return base, nil
}

func restoreThing(t model.SubmittedThing, structured, attrs map[string]any, partial bool, user *int64) (model.SubmittedThing, error) {
	if v, ok := structured["visible"]; ok {
		visible, ok := v.(bool)
		if !ok {
			return t, fmt.Errorf("visible must be a boolean, got %T", v)
		}
		t.Visible = visible
	}

	if v, ok := structured["submitter"]; ok {
		id, err := submitterID(v)
		if err != nil {
			return t, err
		}
		t.SubmitterID = id
	} else if user != nil {
		id := *user
		t.SubmitterID = &id
	}

	if partial {
		existing, err := blob.Decode(t.Data)
		if err != nil {
			return t, err
		}
		for k, v := range attrs {
			existing[k] = v
		}
		attrs = existing
	}
	data, err := blob.Encode(attrs)
	if err != nil {
		return t, err
	}
	t.Data = data
	return t, nil
}

// submitterID accepts a user id, a rendered user document or null.
func submitterID(v any) (*int64, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case float64:
		id := int64(s)
		return &id, nil
	case int64:
		return &s, nil
	case int:
		id := int64(s)
		return &id, nil
	case map[string]any:
		return submitterID(s["id"])
	}
	return nil, fmt.Errorf("unsupported submitter value of type %T", v)
}
