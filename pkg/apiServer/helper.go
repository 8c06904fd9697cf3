package apiServer

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// flagsFromQuery sets a flag for every switch present in the query,
// whatever its value.
func flagsFromQuery(q url.Values) render.Flags { // A
	_, private := q["include_private"]
	_, invisible := q["include_invisible"]
	_, submissions := q["include_submissions"]
	return render.Flags{
		IncludePrivate:     private,
		IncludeInvisible:   invisible,
		IncludeSubmissions: submissions,
	}
}

func parseID(value string) (int64, bool) {
	id, err := strconv.ParseInt(value, 10, 64)
	return id, err == nil && id > 0
}

type collectionMetadata struct {
	Length int `json:"length"`
}

type collection struct {
	Metadata collectionMetadata `json:"metadata"`
	Results  []any              `json:"results"`
}

type errorBody struct {
	Error string `json:"error"`
}

// newCollection wraps rendered items. A failed item becomes an error marker
// in its slot.
func newCollection(items []render.Item) collection {
	results := make([]any, len(items))
	for i, it := range items {
		if it.Err != nil {
			results[i] = errorBody{Error: it.Err.Error()}
			continue
		}
		results[i] = it.Doc
	}
	return collection{Metadata: collectionMetadata{Length: len(items)}, Results: results}
}

func writeJSON(w http.ResponseWriter, status int, payload any) error { // A
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	_ = writeJSON(w, status, errorBody{Error: msg})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, payload any) {
	if err := writeJSON(w, http.StatusOK, payload); err != nil {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("failed to write response")
	}
}

// fail maps err onto a status: missing entities are 404, everything else
// is logged and reported as 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
