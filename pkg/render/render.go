// Package render turns stored entities into the nested documents served by
// the API.
//
// Every call to RenderOne, RenderMany or RenderActions is one request: it
// owns a cache.Buffer and a memo of child collections, both discarded when
// the call returns. RenderMany preloads every path cache key the collection
// needs with a single batched fetch before rendering its members.
package render

import (
	"context"
	"errors"

	"github.com/i5heu/geohive/pkg/blob"
	"github.com/i5heu/geohive/pkg/cache"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/paths"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/sirupsen/logrus"
)

// Mode selects how child collections are rendered.
type Mode int

const (
	// Summary renders each child group as {count, url}.
	Summary Mode = iota
	// Detail renders each child group as its list of documents.
	Detail
)

func (m Mode) String() string {
	if m == Detail {
		return "detail"
	}
	return "summary"
}

// Flags are the per-request switches read from the query string.
type Flags struct {
	IncludePrivate     bool
	IncludeInvisible   bool
	IncludeSubmissions bool
}

// Mode is Detail when submissions were asked for, Summary otherwise.
func (f Flags) Mode() Mode {
	if f.IncludeSubmissions {
		return Detail
	}
	return Summary
}

// Document is a rendered entity, ready for JSON encoding.
type Document map[string]any

// Item is one element of a collection render. Exactly one of Doc and Err
// is set.
type Item struct {
	Doc Document
	Err error
}

type Config struct {
	Store   store.Reader
	Cache   cache.Backend
	Builder paths.IdentifierBuilder
	// MediaURL prefixes attachment file names.
	MediaURL string
	// Providers maps social auth provider names to user data extractors.
	// Nil selects DefaultProviders.
	Providers map[string]UserData
	Metrics   *cache.Metrics
	Logger    *logrus.Logger
}

type Renderer struct {
	store     store.Reader
	cache     cache.Backend
	builder   paths.IdentifierBuilder
	resolver  *paths.Resolver
	mediaURL  string
	providers map[string]UserData
	metrics   *cache.Metrics
	log       *logrus.Logger
}

func New(config Config) *Renderer {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Providers == nil {
		config.Providers = DefaultProviders()
	}
	if config.Builder == nil {
		config.Builder = paths.URLBuilder{}
	}
	return &Renderer{
		store:     config.Store,
		cache:     config.Cache,
		builder:   config.Builder,
		resolver:  paths.NewResolver(config.Store, config.Logger),
		mediaURL:  config.MediaURL,
		providers: config.Providers,
		metrics:   config.Metrics,
		log:       config.Logger,
	}
}

// Resolver exposes the path resolver, e.g. for invalidation after renames.
func (r *Renderer) Resolver() *paths.Resolver { return r.resolver }

// Buffer starts a request-scoped view of the shared path cache.
func (r *Renderer) Buffer() *cache.Buffer {
	return cache.NewBuffer(r.cache, r.log, r.metrics)
}

// RenderOne renders a single entity. Owners render as user documents.
func (r *Renderer) RenderOne(ctx context.Context, e model.Entity, flags Flags) (Document, error) {
	return r.newRequest(ctx, flags).render(e)
}

// RenderMany renders entities in input order. Failures are reported per
// item and never stop the remaining members from rendering.
func (r *Renderer) RenderMany(ctx context.Context, entities []model.Entity, flags Flags) []Item {
	q := r.newRequest(ctx, flags)
	q.preload(entities)

	items := make([]Item, len(entities))
	for i, e := range entities {
		doc, err := q.render(e)
		items[i] = Item{Doc: doc, Err: err}
	}
	return items
}

// RenderActions renders activity stream entries in input order.
func (r *Renderer) RenderActions(ctx context.Context, actions []model.Action, flags Flags) []Item {
	q := r.newRequest(ctx, flags)

	targets := make([]model.Entity, len(actions))
	errs := make([]error, len(actions))
	for i, a := range actions {
		targets[i], errs[i] = q.actionTarget(a)
	}

	loaded := make([]model.Entity, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			loaded = append(loaded, t)
		}
	}
	q.preload(loaded)

	items := make([]Item, len(actions))
	for i, a := range actions {
		if errs[i] != nil {
			items[i] = Item{Err: errs[i]}
			continue
		}
		doc, err := q.action(a, targets[i])
		items[i] = Item{Doc: doc, Err: err}
	}
	return items
}

// perItem reports whether err is scoped to a single entity, so that a
// parent render can drop the affected child group and carry on.
func perItem(err error) bool {
	var upe *paths.UnresolvedPathError
	var mbe *blob.MalformedBlobError
	return errors.As(err, &upe) || errors.As(err, &mbe)
}
