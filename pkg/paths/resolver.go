// Package paths resolves the ancestor path parameters an entity's
// identifier is built from.
//
// Resolution reads the request Buffer first, then the shared cache behind
// it, and on a miss walks the entity's live ancestor chain in the primary
// store and writes the result back. The cache is never needed for
// correctness.
package paths

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/sirupsen/logrus"
)

// UnresolvedPathError reports a path parameter that neither the cache nor
// the live ancestor chain could supply.
type UnresolvedPathError struct {
	Kind  model.Kind
	PK    int64
	Param string
	Err   error
}

func (e *UnresolvedPathError) Error() string {
	msg := fmt.Sprintf("cannot resolve %s for %s %d", e.Param, e.Kind, e.PK)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnresolvedPathError) Unwrap() error { return e.Err }

type Resolver struct {
	store store.Ancestors
	log   *logrus.Logger
}

func NewResolver(s store.Ancestors, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{store: s, log: log}
}

// Resolve returns the path parameters of e, named as ParamNames(e.Kind()).
// Owners are the namespace root and never touch the cache.
func (r *Resolver) Resolve(ctx context.Context, buf *cache.Buffer, e model.Entity) (Params, error) {
	if e.Kind() == model.KindOwner {
		username, ok := e.PathAttr(model.ParamOwnerUsername)
		if !ok {
			return nil, &UnresolvedPathError{Kind: e.Kind(), PK: e.PK(), Param: model.ParamOwnerUsername}
		}
		return Params{model.ParamOwnerUsername: username}, nil
	}

	key := cache.Key(e.Kind(), e.PK())
	if raw, ok := buf.Get(ctx, key); ok {
		params, err := cache.DecodeParams(raw)
		if err == nil && complete(e.Kind(), params) {
			return params, nil
		}
		r.log.WithFields(logrus.Fields{
			"kind":  e.Kind(),
			"pk":    e.PK(),
			"error": err,
		}).Warn("discarding unusable cached path params")
	}

	params, err := r.derive(ctx, buf, e)
	if err != nil {
		return nil, err
	}

	if raw, err := cache.EncodeParams(params); err == nil {
		buf.Set(ctx, key, raw)
	}
	return params, nil
}

// URLArgs projects the resolved parameters of e onto route's arguments.
// Arguments the entity's own parameter set lacks are taken from
// e.PathAttr, so an entity can stand in for a child group it names.
func (r *Resolver) URLArgs(ctx context.Context, buf *cache.Buffer, e model.Entity, route Route) (Params, error) {
	params, resolveErr := r.Resolve(ctx, buf, e)

	args := make(Params, len(route.Args))
	for _, name := range route.Args {
		if v, ok := params[name]; ok {
			args[name] = v
			continue
		}
		if v, ok := e.PathAttr(name); ok {
			args[name] = v
			continue
		}
		if resolveErr != nil {
			return nil, resolveErr
		}
		return nil, &UnresolvedPathError{Kind: e.Kind(), PK: e.PK(), Param: name}
	}
	return args, nil
}

// Preload warms buf for every entity with one batched cache fetch, so later
// Resolve calls in the same request are served from the buffer.
func (r *Resolver) Preload(ctx context.Context, buf *cache.Buffer, entities ...model.Entity) {
	buf.Preload(ctx, Keys(entities...))
}

// Keys returns the deduplicated cache keys Resolve needs for entities.
func Keys(entities ...model.Entity) []string {
	keys := make([]string, 0, len(entities))
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e.Kind() == model.KindOwner {
			continue
		}
		k := cache.Key(e.Kind(), e.PK())
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// Invalidate drops the cached parameters of entities. After renaming a
// dataset or submission set, pass the entity together with all of its
// descendants.
func (r *Resolver) Invalidate(ctx context.Context, buf *cache.Buffer, entities ...model.Entity) error {
	return buf.Delete(ctx, Keys(entities...)...)
}

func complete(kind model.Kind, params Params) bool {
	for _, name := range ParamNames(kind) {
		if params[name] == "" {
			return false
		}
	}
	return true
}

// derive builds the parameters of e from its live ancestor chain. The
// parent's parameters go through Resolve, so they are cached as well.
func (r *Resolver) derive(ctx context.Context, buf *cache.Buffer, e model.Entity) (Params, error) {
	e, err := r.concrete(ctx, e)
	if err != nil {
		return nil, err
	}

	switch v := e.(type) {
	case model.Dataset:
		if v.Slug == "" {
			return nil, &UnresolvedPathError{Kind: v.Kind(), PK: v.ID, Param: model.ParamDatasetSlug}
		}
		owner, err := r.store.Owner(ctx, v.OwnerID)
		if err != nil {
			return nil, r.missing(v, model.ParamOwnerUsername, err)
		}
		if owner.Username == "" {
			return nil, &UnresolvedPathError{Kind: v.Kind(), PK: v.ID, Param: model.ParamOwnerUsername}
		}
		return Params{
			model.ParamOwnerUsername: owner.Username,
			model.ParamDatasetSlug:   v.Slug,
		}, nil

	case model.Place:
		ds, err := r.store.Dataset(ctx, v.DatasetID)
		if err != nil {
			return nil, r.missing(v, model.ParamDatasetSlug, err)
		}
		parent, err := r.Resolve(ctx, buf, ds)
		if err != nil {
			return nil, err
		}
		return extend(parent, model.ParamPlaceID, strconv.FormatInt(v.ID, 10)), nil

	case model.SubmissionSet:
		if v.Name == "" {
			return nil, &UnresolvedPathError{Kind: v.Kind(), PK: v.ID, Param: model.ParamSubmissionSetName}
		}
		p, err := r.store.Place(ctx, v.PlaceID)
		if err != nil {
			return nil, r.missing(v, model.ParamPlaceID, err)
		}
		parent, err := r.Resolve(ctx, buf, p)
		if err != nil {
			return nil, err
		}
		return extend(parent, model.ParamSubmissionSetName, v.Name), nil

	case model.Submission:
		s, err := r.store.SubmissionSet(ctx, v.SetID)
		if err != nil {
			return nil, r.missing(v, model.ParamSubmissionSetName, err)
		}
		parent, err := r.Resolve(ctx, buf, s)
		if err != nil {
			return nil, err
		}
		return extend(parent, model.ParamSubmissionID, strconv.FormatInt(v.ID, 10)), nil
	}

	return nil, fmt.Errorf("no path parameters for %s entities", e.Kind())
}

// concrete loads the stored entity when e is only a stand-in carrying a
// kind and primary key.
func (r *Resolver) concrete(ctx context.Context, e model.Entity) (model.Entity, error) {
	switch e.(type) {
	case model.Dataset, model.Place, model.SubmissionSet, model.Submission:
		return e, nil
	}

	var (
		loaded model.Entity
		err    error
	)
	switch e.Kind() {
	case model.KindDataset:
		loaded, err = r.store.Dataset(ctx, e.PK())
	case model.KindPlace:
		loaded, err = r.store.Place(ctx, e.PK())
	case model.KindSubmissionSet:
		loaded, err = r.store.SubmissionSet(ctx, e.PK())
	case model.KindSubmission:
		loaded, err = r.store.Submission(ctx, e.PK())
	default:
		return nil, fmt.Errorf("no path parameters for %s entities", e.Kind())
	}
	if err != nil {
		names := ParamNames(e.Kind())
		return nil, r.missing(e, names[len(names)-1], err)
	}
	return loaded, nil
}

// missing turns a failed ancestor lookup into an UnresolvedPathError when
// the ancestor does not exist. Other store failures pass through.
func (r *Resolver) missing(e model.Entity, param string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &UnresolvedPathError{Kind: e.Kind(), PK: e.PK(), Param: param, Err: err}
	}
	return fmt.Errorf("resolving %s of %s %d: %w", param, e.Kind(), e.PK(), err)
}

func extend(parent Params, name, value string) Params {
	out := make(Params, len(parent)+1)
	for k, v := range parent {
		out[k] = v
	}
	out[name] = value
	return out
}
