package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/i5heu/geohive/pkg/geometry"
	"github.com/i5heu/geohive/pkg/model"
)

func (s *Store) CreateOwner(ctx context.Context, o model.Owner) (model.Owner, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO owners (username) VALUES (?)`, o.Username)
	if err != nil {
		return model.Owner{}, fmt.Errorf("create owner %q: %w", o.Username, err)
	}
	o.ID, err = res.LastInsertId()
	return o, err
}

func (s *Store) CreateSocialAuth(ctx context.Context, sa model.SocialAuth) error {
	extra := sa.ExtraData
	if extra == nil {
		extra = map[string]any{}
	}
	raw, err := json.Marshal(extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO social_auths (owner_id, provider, extra_data) VALUES (?, ?, ?)`,
		sa.OwnerID, sa.Provider, string(raw))
	return err
}

func (s *Store) CreateDataset(ctx context.Context, d model.Dataset) (model.Dataset, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (owner_id, slug, display_name) VALUES (?, ?, ?)`,
		d.OwnerID, d.Slug, d.DisplayName)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("create dataset %q: %w", d.Slug, err)
	}
	d.ID, err = res.LastInsertId()
	return d, err
}

func (s *Store) CreateAPIKey(ctx context.Context, k model.APIKey) (model.APIKey, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (dataset_id, key) VALUES (?, ?)`, k.DatasetID, k.Key)
	if err != nil {
		return model.APIKey{}, err
	}
	k.ID, err = res.LastInsertId()
	return k, err
}

func (s *Store) CreateGroup(ctx context.Context, g model.Group) (model.Group, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO owner_groups (dataset_id, name) VALUES (?, ?)`, g.DatasetID, g.Name)
	if err != nil {
		return model.Group{}, fmt.Errorf("create group %q: %w", g.Name, err)
	}
	g.ID, err = res.LastInsertId()
	return g, err
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, ownerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, owner_id) VALUES (?, ?)`, groupID, ownerID)
	return err
}

func nullable(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// insertThing writes the shared row of a place or submission and fills in
// its id and timestamps.
func (s *Store) insertThing(ctx context.Context, tx *sql.Tx, t *model.SubmittedThing) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Data == "" {
		t.Data = "{}"
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO things (dataset_id, submitter_id, visible, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.DatasetID, nullable(t.SubmitterID), t.Visible, t.Data, unixNano(t.CreatedAt), unixNano(t.UpdatedAt))
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CreatePlace(ctx context.Context, p model.Place) (model.Place, error) {
	wkt, err := geometry.WKT(p.Geometry)
	if err != nil {
		return model.Place{}, err
	}
	if p.Geometry == nil {
		p.Geometry = geometry.Default()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Place{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertThing(ctx, tx, &p.SubmittedThing); err != nil {
		return model.Place{}, fmt.Errorf("create place: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO places (id, geometry) VALUES (?, ?)`, p.ID, wkt); err != nil {
		return model.Place{}, fmt.Errorf("create place: %w", err)
	}
	return p, tx.Commit()
}

func (s *Store) EnsureSubmissionSet(ctx context.Context, placeID int64, name string) (model.SubmissionSet, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO submission_sets (place_id, name) VALUES (?, ?)`, placeID, name); err != nil {
		return model.SubmissionSet{}, fmt.Errorf("ensure submission set %q: %w", name, err)
	}
	return s.SubmissionSetByName(ctx, placeID, name)
}

func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Submission{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertThing(ctx, tx, &sub.SubmittedThing); err != nil {
		return model.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO submissions (id, set_id) VALUES (?, ?)`, sub.ID, sub.SetID); err != nil {
		return model.Submission{}, fmt.Errorf("create submission: %w", err)
	}
	return sub, tx.Commit()
}

func (s *Store) CreateAttachment(ctx context.Context, a model.Attachment) (model.Attachment, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (thing_id, name, file, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.ThingID, a.Name, a.File, unixNano(a.CreatedAt), unixNano(a.UpdatedAt))
	if err != nil {
		return model.Attachment{}, err
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

func (s *Store) CreateAction(ctx context.Context, a model.Action) (model.Action, error) {
	if (a.PlaceID == nil) == (a.SubmissionID == nil) {
		return model.Action{}, fmt.Errorf("action needs exactly one of place or submission")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO actions (created_at, place_id, submission_id) VALUES (?, ?, ?)`,
		unixNano(a.CreatedAt), nullable(a.PlaceID), nullable(a.SubmissionID))
	if err != nil {
		return model.Action{}, err
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

func (s *Store) rename(ctx context.Context, kind model.Kind, query string, id int64, value string) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

func (s *Store) RenameDataset(ctx context.Context, id int64, slug string) error {
	return s.rename(ctx, model.KindDataset, `UPDATE datasets SET slug = ? WHERE id = ?`, id, slug)
}

func (s *Store) RenameSubmissionSet(ctx context.Context, id int64, name string) error {
	return s.rename(ctx, model.KindSubmissionSet, `UPDATE submission_sets SET name = ? WHERE id = ?`, id, name)
}
