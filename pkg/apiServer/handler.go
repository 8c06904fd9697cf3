package apiServer

import (
	"context"
	"net/http"

	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store"
	"github.com/julienschmidt/httprouter"
)

const (
	childPlaces = "places"
	childKeys   = "keys"
)

func notFound(kind model.Kind, ref string) error {
	return &store.NotFoundError{Kind: kind, Ref: ref}
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	owner, err := s.store.OwnerByUsername(r.Context(), ps.ByName("owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.renderer.RenderOne(r.Context(), owner, flagsFromQuery(r.URL.Query()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, doc)
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ctx := r.Context()
	owner, err := s.store.OwnerByUsername(ctx, ps.ByName("owner"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	datasets, err := s.store.Datasets(ctx, owner.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := s.renderer.RenderMany(ctx, entities(datasets), flagsFromQuery(r.URL.Query()))
	s.respond(w, r, newCollection(items))
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ds, err := s.store.DatasetBySlug(r.Context(), ps.ByName("owner"), ps.ByName("dataset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.renderer.RenderOne(r.Context(), ds, flagsFromQuery(r.URL.Query()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, doc)
}

// handleDatasetChild serves the place list, or every submission of the
// dataset in the set named by :child.
func (s *Server) handleDatasetChild(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ctx := r.Context()
	flags := flagsFromQuery(r.URL.Query())
	ds, err := s.store.DatasetBySlug(ctx, ps.ByName("owner"), ps.ByName("dataset"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	switch child := ps.ByName("child"); child {
	case childPlaces:
		places, err := s.store.Places(ctx, ds.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		places = visible(places, flags, func(p model.Place) bool { return p.Visible })
		s.respond(w, r, newCollection(s.renderer.RenderMany(ctx, entities(places), flags)))
	case childKeys:
		writeError(w, http.StatusForbidden, "api keys are not served")
	default:
		subs, err := s.store.DatasetSubmissions(ctx, ds.ID, child)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		subs = visible(subs, flags, func(sub model.Submission) bool { return sub.Visible })
		s.respond(w, r, newCollection(s.renderer.RenderMany(ctx, entities(subs), flags)))
	}
}

// place loads the place addressed by the request and checks that it
// belongs to the addressed dataset and may be shown.
func (s *Server) place(ctx context.Context, ps httprouter.Params, flags render.Flags) (model.Place, error) {
	ref := ps.ByName("owner") + "/" + ps.ByName("dataset") + "/" + ps.ByName("place")
	if ps.ByName("child") != childPlaces {
		return model.Place{}, notFound(model.KindPlace, ref)
	}
	id, ok := parseID(ps.ByName("place"))
	if !ok {
		return model.Place{}, notFound(model.KindPlace, ref)
	}
	ds, err := s.store.DatasetBySlug(ctx, ps.ByName("owner"), ps.ByName("dataset"))
	if err != nil {
		return model.Place{}, err
	}
	p, err := s.store.Place(ctx, id)
	if err != nil {
		return model.Place{}, err
	}
	if p.DatasetID != ds.ID || (!p.Visible && !flags.IncludeInvisible) {
		return model.Place{}, notFound(model.KindPlace, ref)
	}
	return p, nil
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	flags := flagsFromQuery(r.URL.Query())
	p, err := s.place(r.Context(), ps, flags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.renderer.RenderOne(r.Context(), p, flags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, doc)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ctx := r.Context()
	flags := flagsFromQuery(r.URL.Query())
	p, err := s.place(ctx, ps, flags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	set, err := s.store.SubmissionSetByName(ctx, p.ID, ps.ByName("set"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	bySet, err := s.store.Submissions(ctx, set.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	subs := visible(bySet[set.ID], flags, func(sub model.Submission) bool { return sub.Visible })
	s.respond(w, r, newCollection(s.renderer.RenderMany(ctx, entities(subs), flags)))
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ctx := r.Context()
	flags := flagsFromQuery(r.URL.Query())
	p, err := s.place(ctx, ps, flags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	set, err := s.store.SubmissionSetByName(ctx, p.ID, ps.ByName("set"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ref := ps.ByName("set") + "/" + ps.ByName("submission")
	id, ok := parseID(ps.ByName("submission"))
	if !ok {
		s.fail(w, r, notFound(model.KindSubmission, ref))
		return
	}
	sub, err := s.store.Submission(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sub.SetID != set.ID || (!sub.Visible && !flags.IncludeInvisible) {
		s.fail(w, r, notFound(model.KindSubmission, ref))
		return
	}

	doc, err := s.renderer.RenderOne(ctx, sub, flags)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, doc)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) { // A
	ctx := r.Context()
	id, ok := parseID(ps.ByName("id"))
	if !ok {
		s.fail(w, r, notFound("action", ps.ByName("id")))
		return
	}
	a, err := s.store.Action(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	item := s.renderer.RenderActions(ctx, []model.Action{a}, flagsFromQuery(r.URL.Query()))[0]
	if item.Err != nil {
		s.fail(w, r, item.Err)
		return
	}
	s.respond(w, r, item.Doc)
}

func visible[T any](in []T, flags render.Flags, isVisible func(T) bool) []T {
	if flags.IncludeInvisible {
		return in
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if isVisible(v) {
			out = append(out, v)
		}
	}
	return out
}

func entities[T model.Entity](in []T) []model.Entity {
	out := make([]model.Entity, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}
