// Package store defines the primary store accessor consumed by the
// serialization engine. The store is authoritative; everything the path
// cache holds can be rebuilt from it.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/i5heu/geohive/pkg/model"
)

// ErrNotFound matches every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an entity missing from the store.
type NotFoundError struct {
	Kind model.Kind
	// Ref describes the lookup, e.g. a primary key or "alice/trees".
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Ref)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Ancestors loads single entities by primary key. It is all the path
// resolver needs to walk an entity's ancestor chain.
type Ancestors interface {
	Owner(ctx context.Context, id int64) (model.Owner, error)
	Dataset(ctx context.Context, id int64) (model.Dataset, error)
	Place(ctx context.Context, id int64) (model.Place, error)
	SubmissionSet(ctx context.Context, id int64) (model.SubmissionSet, error)
	Submission(ctx context.Context, id int64) (model.Submission, error)
}

// Reader is the read side of the primary store.
type Reader interface {
	Ancestors

	OwnerByUsername(ctx context.Context, username string) (model.Owner, error)
	DatasetBySlug(ctx context.Context, ownerUsername, slug string) (model.Dataset, error)
	Datasets(ctx context.Context, ownerID int64) ([]model.Dataset, error)
	Places(ctx context.Context, datasetID int64) ([]model.Place, error)
	SubmissionSetByName(ctx context.Context, placeID int64, name string) (model.SubmissionSet, error)
	Action(ctx context.Context, id int64) (model.Action, error)

	// SubmissionSets returns the sets of every given place, keyed by place id.
	SubmissionSets(ctx context.Context, placeIDs ...int64) (map[int64][]model.SubmissionSet, error)

	// Submissions returns the submissions of every given set in creation
	// order, keyed by set id.
	Submissions(ctx context.Context, setIDs ...int64) (map[int64][]model.Submission, error)

	// DatasetSubmissions returns, in creation order, every submission of a
	// dataset whose set is named setName.
	DatasetSubmissions(ctx context.Context, datasetID int64, setName string) ([]model.Submission, error)

	APIKeys(ctx context.Context, datasetID int64) ([]model.APIKey, error)
	Attachments(ctx context.Context, thingIDs ...int64) (map[int64][]model.Attachment, error)
	SocialAuths(ctx context.Context, ownerID int64) ([]model.SocialAuth, error)
	// Groups returns the groups ownerID is a member of.
	Groups(ctx context.Context, ownerID int64) ([]model.Group, error)

	// PlaceCounts counts places per dataset. Invisible places are only
	// counted when includeInvisible is set.
	PlaceCounts(ctx context.Context, includeInvisible bool, datasetIDs ...int64) (map[int64]int, error)

	// SubmissionSetCounts counts submissions per dataset and set name.
	SubmissionSetCounts(ctx context.Context, includeInvisible bool, datasetIDs ...int64) (map[int64]map[string]int, error)
}

// Writer is the write side used by seeding and the restore path.
type Writer interface {
	CreateOwner(ctx context.Context, o model.Owner) (model.Owner, error)
	CreateSocialAuth(ctx context.Context, sa model.SocialAuth) error
	CreateDataset(ctx context.Context, d model.Dataset) (model.Dataset, error)
	CreateAPIKey(ctx context.Context, k model.APIKey) (model.APIKey, error)
	CreateGroup(ctx context.Context, g model.Group) (model.Group, error)
	AddGroupMember(ctx context.Context, groupID, ownerID int64) error
	CreatePlace(ctx context.Context, p model.Place) (model.Place, error)
	// EnsureSubmissionSet returns the set named name on placeID, creating it
	// if needed.
	EnsureSubmissionSet(ctx context.Context, placeID int64, name string) (model.SubmissionSet, error)
	CreateSubmission(ctx context.Context, s model.Submission) (model.Submission, error)
	CreateAttachment(ctx context.Context, a model.Attachment) (model.Attachment, error)
	CreateAction(ctx context.Context, a model.Action) (model.Action, error)

	RenameDataset(ctx context.Context, id int64, slug string) error
	RenameSubmissionSet(ctx context.Context, id int64, name string) error
}

// Store is a complete primary store.
type Store interface {
	Reader
	Writer
	Close() error
}
