// Package model holds the store-agnostic entities of the geodata hierarchy:
// owners own datasets, datasets contain places, places own named submission
// sets of ordered submissions.
package model

import (
	"strconv"
	"time"

	"github.com/twpayne/go-geom"
)

// Kind names an entity type. It is part of every cache key, so the values
// must stay stable.
type Kind string

const (
	KindOwner         Kind = "owner"
	KindDataset       Kind = "dataset"
	KindPlace         Kind = "place"
	KindSubmissionSet Kind = "submission_set"
	KindSubmission    Kind = "submission"
)

func (k Kind) String() string { return string(k) }

// Path parameter names in URL order.
const (
	ParamOwnerUsername     = "owner_username"
	ParamDatasetSlug       = "dataset_slug"
	ParamPlaceID           = "place_id"
	ParamSubmissionSetName = "submission_set_name"
	ParamSubmissionID      = "submission_id"
)

// Entity is anything whose identifier is built from ancestor path parameters.
type Entity interface {
	Kind() Kind
	PK() int64
	// PathAttr returns a path parameter carried directly on the entity.
	PathAttr(name string) (string, bool)
}

type Owner struct {
	ID       int64
	Username string
}

func (o Owner) Kind() Kind { return KindOwner }
func (o Owner) PK() int64  { return o.ID }

func (o Owner) PathAttr(name string) (string, bool) {
	if name == ParamOwnerUsername && o.Username != "" {
		return o.Username, true
	}
	return "", false
}

type Dataset struct {
	ID          int64
	OwnerID     int64
	Slug        string
	DisplayName string
}

func (d Dataset) Kind() Kind { return KindDataset }
func (d Dataset) PK() int64  { return d.ID }

func (d Dataset) PathAttr(name string) (string, bool) {
	if name == ParamDatasetSlug && d.Slug != "" {
		return d.Slug, true
	}
	return "", false
}

// APIKey is an access-key credential of a dataset.
type APIKey struct {
	ID        int64
	DatasetID int64
	Key       string
}

// SubmittedThing is the shape shared by places and submissions.
type SubmittedThing struct {
	ID          int64
	DatasetID   int64
	SubmitterID *int64
	Visible     bool
	// Data is the serialized attribute blob, stored as a JSON object.
	Data      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Place struct {
	SubmittedThing
	Geometry geom.T
	// Distance is set when the place was selected by a proximity query. It
	// is in meters.
	Distance *float64
}

func (p Place) Kind() Kind { return KindPlace }
func (p Place) PK() int64  { return p.ID }

func (p Place) PathAttr(name string) (string, bool) {
	if name == ParamPlaceID && p.ID != 0 {
		return strconv.FormatInt(p.ID, 10), true
	}
	return "", false
}

type SubmissionSet struct {
	ID      int64
	PlaceID int64
	Name    string
}

func (s SubmissionSet) Kind() Kind { return KindSubmissionSet }
func (s SubmissionSet) PK() int64  { return s.ID }

func (s SubmissionSet) PathAttr(name string) (string, bool) {
	switch name {
	case ParamSubmissionSetName:
		return s.Name, s.Name != ""
	case ParamPlaceID:
		return strconv.FormatInt(s.PlaceID, 10), s.PlaceID != 0
	}
	return "", false
}

type Submission struct {
	SubmittedThing
	SetID int64
}

func (s Submission) Kind() Kind { return KindSubmission }
func (s Submission) PK() int64  { return s.ID }

func (s Submission) PathAttr(name string) (string, bool) {
	if name == ParamSubmissionID && s.ID != 0 {
		return strconv.FormatInt(s.ID, 10), true
	}
	return "", false
}

// Attachment is a file attached to a place or submission.
type Attachment struct {
	ID        int64
	ThingID   int64
	Name      string
	File      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SocialAuth links an owner to an external identity provider. ExtraData is
// the provider's raw user info.
type SocialAuth struct {
	OwnerID   int64
	Provider  string
	ExtraData map[string]any
}

// Group is a named set of owners attached to a dataset.
type Group struct {
	ID        int64
	DatasetID int64
	Name      string
}

// Action records activity on a place or a submission. Exactly one of
// PlaceID and SubmissionID is set.
type Action struct {
	ID           int64
	CreatedAt    time.Time
	PlaceID      *int64
	SubmissionID *int64
}
