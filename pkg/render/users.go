package render

import (
	"regexp"

	"github.com/i5heu/geohive/pkg/model"
)

// UserData extracts profile details from a social auth provider's raw user
// info. A nil result renders as JSON null.
type UserData interface {
	AvatarURL(info map[string]any) any
	FullName(info map[string]any) any
	Bio(info map[string]any) any
}

// DefaultProviders returns the extractors for the supported providers.
func DefaultProviders() map[string]UserData {
	return map[string]UserData{
		"twitter":     twitterUser{},
		"facebook":    facebookUser{},
		"shareabouts": shareaboutsUser{},
	}
}

// userData picks the first linked provider with a known extractor.
func (r *Renderer) userData(auths []model.SocialAuth) (map[string]any, UserData) {
	for _, sa := range auths {
		if data, ok := r.providers[sa.Provider]; ok {
			return sa.ExtraData, data
		}
	}
	return nil, noUser{}
}

func str(info map[string]any, key string) string {
	s, _ := info[key].(string)
	return s
}

type noUser struct{}

func (noUser) AvatarURL(map[string]any) any { return "" }
func (noUser) FullName(map[string]any) any  { return "" }
func (noUser) Bio(map[string]any) any       { return "" }

type twitterUser struct{}

var twitterAvatar = regexp.MustCompile(`^(.*?)(?:_normal|_mini|_bigger|)(\.[^.]*)$`)

// AvatarURL points at the larger variant of the profile image.
func (twitterUser) AvatarURL(info map[string]any) any {
	url := str(info, "profile_image_url")
	m := twitterAvatar.FindStringSubmatch(url)
	if m == nil {
		return url
	}
	return m[1] + "_bigger" + m[2]
}

func (twitterUser) FullName(info map[string]any) any { return str(info, "name") }
func (twitterUser) Bio(info map[string]any) any      { return str(info, "description") }

type facebookUser struct{}

func (facebookUser) AvatarURL(info map[string]any) any {
	picture, _ := info["picture"].(map[string]any)
	data, _ := picture["data"].(map[string]any)
	return str(data, "url")
}

func (facebookUser) FullName(info map[string]any) any { return str(info, "name") }
func (facebookUser) Bio(info map[string]any) any      { return str(info, "bio") }

// shareaboutsUser serves profiles entered directly, without an external
// identity provider. Missing fields stay null.
type shareaboutsUser struct{}

func (shareaboutsUser) AvatarURL(info map[string]any) any { return info["avatar_url"] }
func (shareaboutsUser) FullName(info map[string]any) any  { return info["full_name"] }
func (shareaboutsUser) Bio(info map[string]any) any       { return info["bio"] }
