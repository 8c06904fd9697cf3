package geohive

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/i5heu/geohive/pkg/store"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fixture is the seed file layout. Places and submissions are input
// documents as a client would send them; "attachments" and
// "submission_sets" on a place are read by the seeder itself.
type Fixture struct {
	Owners []OwnerFixture `json:"owners"`
}

type OwnerFixture struct {
	Username    string           `json:"username"`
	SocialAuths []SocialAuthSeed `json:"social_auths"`
	Datasets    []DatasetFixture `json:"datasets"`
}

type SocialAuthSeed struct {
	Provider  string         `json:"provider"`
	ExtraData map[string]any `json:"extra_data"`
}

type DatasetFixture struct {
	Slug        string           `json:"slug"`
	DisplayName string           `json:"display_name"`
	Keys        []string         `json:"keys"`
	Groups      []GroupFixture   `json:"groups"`
	Places      []map[string]any `json:"places"`
}

// GroupFixture names its members by username. Members may be owners that
// appear later in the fixture.
type GroupFixture struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type AttachmentSeed struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// SeedStats counts what Seed created.
type SeedStats struct {
	Owners      int
	Datasets    int
	Places      int
	Submissions int
}

// Seed loads a JSON fixture into the primary store through the restore
// path. Things without a submitter are attributed to their dataset's owner.
func (g *GeoHive) Seed(ctx context.Context, r io.Reader) (SeedStats, error) {
	var stats SeedStats
	st, err := g.Store()
	if err != nil {
		return stats, err
	}

	var fx Fixture
	if err := json.NewDecoder(r).Decode(&fx); err != nil {
		return stats, fmt.Errorf("decode fixture: %w", err)
	}

	type pendingGroup struct {
		dataset model.Dataset
		GroupFixture
	}
	var groups []pendingGroup

	for _, of := range fx.Owners {
		owner, err := st.CreateOwner(ctx, model.Owner{Username: of.Username})
		if err != nil {
			return stats, fmt.Errorf("owner %s: %w", of.Username, err)
		}
		stats.Owners++
		for _, sa := range of.SocialAuths {
			if err := st.CreateSocialAuth(ctx, model.SocialAuth{OwnerID: owner.ID, Provider: sa.Provider, ExtraData: sa.ExtraData}); err != nil {
				return stats, fmt.Errorf("owner %s: social auth: %w", of.Username, err)
			}
		}

		for _, df := range of.Datasets {
			ds, err := st.CreateDataset(ctx, model.Dataset{OwnerID: owner.ID, Slug: df.Slug, DisplayName: df.DisplayName})
			if err != nil {
				return stats, fmt.Errorf("dataset %s/%s: %w", of.Username, df.Slug, err)
			}
			stats.Datasets++
			for _, gf := range df.Groups {
				groups = append(groups, pendingGroup{dataset: ds, GroupFixture: gf})
			}
			for _, key := range df.Keys {
				if _, err := st.CreateAPIKey(ctx, model.APIKey{DatasetID: ds.ID, Key: key}); err != nil {
					return stats, fmt.Errorf("dataset %s/%s: api key: %w", of.Username, df.Slug, err)
				}
			}
			for i, input := range df.Places {
				n, err := seedPlace(ctx, st, ds, owner.ID, input)
				if err != nil {
					return stats, fmt.Errorf("dataset %s/%s: place %d: %w", of.Username, df.Slug, i, err)
				}
				stats.Places++
				stats.Submissions += n
			}
		}
	}

	for _, pg := range groups {
		group, err := st.CreateGroup(ctx, model.Group{DatasetID: pg.dataset.ID, Name: pg.Name})
		if err != nil {
			return stats, fmt.Errorf("dataset %s: %w", pg.dataset.Slug, err)
		}
		for _, username := range pg.Members {
			member, err := st.OwnerByUsername(ctx, username)
			if err != nil {
				return stats, fmt.Errorf("group %s: %w", pg.Name, err)
			}
			if err := st.AddGroupMember(ctx, group.ID, member.ID); err != nil {
				return stats, fmt.Errorf("group %s: %w", pg.Name, err)
			}
		}
	}

	g.log.WithField("owners", stats.Owners).
		WithField("datasets", stats.Datasets).
		WithField("places", stats.Places).
		WithField("submissions", stats.Submissions).
		Info("fixture seeded")
	return stats, nil
}

func seedPlace(ctx context.Context, st store.Writer, ds model.Dataset, user int64, input map[string]any) (int, error) {
	p, err := render.RestorePlace(model.Place{SubmittedThing: model.SubmittedThing{DatasetID: ds.ID}}, input, false, &user)
	if err != nil {
		return 0, err
	}
	p, err = st.CreatePlace(ctx, p)
	if err != nil {
		return 0, err
	}
	if err := seedAttachments(ctx, st, p.ID, input["attachments"]); err != nil {
		return 0, err
	}

	raw, _ := input["submission_sets"].(map[string]any)
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		list, ok := raw[name].([]any)
		if !ok {
			return count, fmt.Errorf("submission set %s: expected a list", name)
		}
		set, err := st.EnsureSubmissionSet(ctx, p.ID, name)
		if err != nil {
			return count, err
		}
		for _, item := range list {
			doc, ok := item.(map[string]any)
			if !ok {
				return count, fmt.Errorf("submission set %s: expected objects", name)
			}
			sub, err := render.RestoreSubmission(model.Submission{
				SubmittedThing: model.SubmittedThing{DatasetID: ds.ID},
				SetID:          set.ID,
			}, doc, false, &user)
			if err != nil {
				return count, err
			}
			sub, err = st.CreateSubmission(ctx, sub)
			if err != nil {
				return count, err
			}
			if err := seedAttachments(ctx, st, sub.ID, doc["attachments"]); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func seedAttachments(ctx context.Context, st store.Writer, thingID int64, raw any) error {
	if raw == nil {
		return nil
	}
	// Round trip through JSON to read the loosely typed input.
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	var list []AttachmentSeed
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("attachments: %w", err)
	}
	for _, a := range list {
		if _, err := st.CreateAttachment(ctx, model.Attachment{ThingID: thingID, Name: a.Name, File: a.File}); err != nil {
			return err
		}
	}
	return nil
}
