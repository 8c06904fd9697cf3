package paths

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/i5heu/geohive/pkg/model"
)

// Params maps path parameter names to values.
type Params map[string]string

// Route is an identifier kind: a view name plus the ordered path parameters
// it is built from.
type Route struct {
	Name string
	Args []string
}

var (
	argsOwner      = []string{model.ParamOwnerUsername}
	argsDataset    = []string{model.ParamOwnerUsername, model.ParamDatasetSlug}
	argsPlace      = []string{model.ParamOwnerUsername, model.ParamDatasetSlug, model.ParamPlaceID}
	argsSet        = []string{model.ParamOwnerUsername, model.ParamDatasetSlug, model.ParamPlaceID, model.ParamSubmissionSetName}
	argsSubmission = []string{model.ParamOwnerUsername, model.ParamDatasetSlug, model.ParamPlaceID, model.ParamSubmissionSetName, model.ParamSubmissionID}
)

var (
	UserDetail            = Route{Name: "user-detail", Args: argsOwner}
	DatasetDetail         = Route{Name: "dataset-detail", Args: argsDataset}
	APIKeyList            = Route{Name: "apikey-list", Args: argsDataset}
	PlaceList             = Route{Name: "place-list", Args: argsDataset}
	PlaceDetail           = Route{Name: "place-detail", Args: argsPlace}
	SubmissionList        = Route{Name: "submission-list", Args: argsSet}
	DatasetSubmissionList = Route{Name: "dataset-submission-list", Args: []string{model.ParamOwnerUsername, model.ParamDatasetSlug, model.ParamSubmissionSetName}}
	SubmissionDetail      = Route{Name: "submission-detail", Args: argsSubmission}
)

// ParamNames returns the path parameters resolved for an entity kind.
func ParamNames(kind model.Kind) []string {
	switch kind {
	case model.KindOwner:
		return argsOwner
	case model.KindDataset:
		return argsDataset
	case model.KindPlace:
		return argsPlace
	case model.KindSubmissionSet:
		return argsSet
	case model.KindSubmission:
		return argsSubmission
	}
	return nil
}

// IdentifierBuilder turns a route and its arguments into an external
// identifier. Implementations must be pure functions of their input.
type IdentifierBuilder interface {
	Build(route Route, args Params) (string, error)
}

var patterns = map[string]string{
	UserDetail.Name:            "/api/v2/{owner_username}",
	DatasetDetail.Name:         "/api/v2/{owner_username}/datasets/{dataset_slug}",
	APIKeyList.Name:            "/api/v2/{owner_username}/datasets/{dataset_slug}/keys",
	PlaceList.Name:             "/api/v2/{owner_username}/datasets/{dataset_slug}/places",
	PlaceDetail.Name:           "/api/v2/{owner_username}/datasets/{dataset_slug}/places/{place_id}",
	SubmissionList.Name:        "/api/v2/{owner_username}/datasets/{dataset_slug}/places/{place_id}/{submission_set_name}",
	DatasetSubmissionList.Name: "/api/v2/{owner_username}/datasets/{dataset_slug}/{submission_set_name}",
	SubmissionDetail.Name:      "/api/v2/{owner_username}/datasets/{dataset_slug}/places/{place_id}/{submission_set_name}/{submission_id}",
}

// URLBuilder builds absolute API URLs below BaseURL.
type URLBuilder struct {
	BaseURL string
}

func (b URLBuilder) Build(route Route, args Params) (string, error) {
	pattern, ok := patterns[route.Name]
	if !ok {
		return "", fmt.Errorf("unknown route %q", route.Name)
	}
	out := pattern
	for _, name := range route.Args {
		v, ok := args[name]
		if !ok {
			return "", fmt.Errorf("route %s: missing argument %s", route.Name, name)
		}
		out = strings.Replace(out, "{"+name+"}", url.PathEscape(v), 1)
	}
	return strings.TrimRight(b.BaseURL, "/") + out, nil
}
