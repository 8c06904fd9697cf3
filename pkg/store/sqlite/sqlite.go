// Package sqlite is the primary store on top of modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/i5heu/geohive/pkg/geometry"
	"github.com/i5heu/geohive/pkg/model"
	"github.com/i5heu/geohive/pkg/store"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path   string
	Logger *logrus.Logger
}

type Store struct {
	db  *sql.DB
	log *logrus.Logger
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func Open(config Config) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("sqlite: database path is empty")
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", config.Path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	config.Logger.WithField("path", config.Path).Debug("primary store opened")
	return &Store{db: db, log: config.Logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func notFound(kind model.Kind, ref any) error {
	return &store.NotFoundError{Kind: kind, Ref: fmt.Sprint(ref)}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// maxInArgs caps the ids bound into one IN (...) list, well below SQLite's
// host parameter limit.
var maxInArgs = 2000

// inChunks calls fn with consecutive slices of ids of at most maxInArgs.
func inChunks(ids []int64, fn func(part []int64) error) error {
	for len(ids) > 0 {
		n := min(len(ids), maxInArgs)
		if err := fn(ids[:n]); err != nil {
			return err
		}
		ids = ids[n:]
	}
	return nil
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

// ---- reads ----

func (s *Store) Owner(ctx context.Context, id int64) (model.Owner, error) {
	o := model.Owner{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT username FROM owners WHERE id = ?`, id).Scan(&o.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Owner{}, notFound(model.KindOwner, id)
	}
	return o, err
}

func (s *Store) OwnerByUsername(ctx context.Context, username string) (model.Owner, error) {
	o := model.Owner{Username: username}
	err := s.db.QueryRowContext(ctx, `SELECT id FROM owners WHERE username = ?`, username).Scan(&o.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Owner{}, notFound(model.KindOwner, username)
	}
	return o, err
}

const datasetColumns = `d.id, d.owner_id, d.slug, d.display_name`

func scanDataset(row interface{ Scan(...any) error }) (model.Dataset, error) {
	var d model.Dataset
	err := row.Scan(&d.ID, &d.OwnerID, &d.Slug, &d.DisplayName)
	return d, err
}

func (s *Store) Dataset(ctx context.Context, id int64) (model.Dataset, error) {
	d, err := scanDataset(s.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets d WHERE d.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Dataset{}, notFound(model.KindDataset, id)
	}
	return d, err
}

func (s *Store) DatasetBySlug(ctx context.Context, ownerUsername, slug string) (model.Dataset, error) {
	d, err := scanDataset(s.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets d
		 JOIN owners o ON o.id = d.owner_id
		 WHERE o.username = ? AND d.slug = ?`, ownerUsername, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Dataset{}, notFound(model.KindDataset, ownerUsername+"/"+slug)
	}
	return d, err
}

func (s *Store) Datasets(ctx context.Context, ownerID int64) ([]model.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets d WHERE d.owner_id = ? ORDER BY d.id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const thingColumns = `t.id, t.dataset_id, t.submitter_id, t.visible, t.data, t.created_at, t.updated_at`

func thingDest(t *model.SubmittedThing, submitter *sql.NullInt64, created, updated *int64) []any {
	return []any{&t.ID, &t.DatasetID, submitter, &t.Visible, &t.Data, created, updated}
}

func finishThing(t *model.SubmittedThing, submitter sql.NullInt64, created, updated int64) {
	if submitter.Valid {
		id := submitter.Int64
		t.SubmitterID = &id
	}
	t.CreatedAt = fromUnixNano(created)
	t.UpdatedAt = fromUnixNano(updated)
}

func scanPlace(row interface{ Scan(...any) error }) (model.Place, error) {
	var (
		p                model.Place
		submitter        sql.NullInt64
		created, updated int64
		wkt              string
	)
	dest := append(thingDest(&p.SubmittedThing, &submitter, &created, &updated), &wkt)
	if err := row.Scan(dest...); err != nil {
		return model.Place{}, err
	}
	finishThing(&p.SubmittedThing, submitter, created, updated)

	g, err := geometry.Parse(wkt)
	if err != nil {
		return model.Place{}, fmt.Errorf("place %d: %w", p.ID, err)
	}
	p.Geometry = g
	return p, nil
}

const placeQuery = `SELECT ` + thingColumns + `, p.geometry FROM places p JOIN things t ON t.id = p.id`

func (s *Store) Place(ctx context.Context, id int64) (model.Place, error) {
	p, err := scanPlace(s.db.QueryRowContext(ctx, placeQuery+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Place{}, notFound(model.KindPlace, id)
	}
	return p, err
}

func (s *Store) Places(ctx context.Context, datasetID int64) ([]model.Place, error) {
	rows, err := s.db.QueryContext(ctx, placeQuery+` WHERE t.dataset_id = ? ORDER BY t.id`, datasetID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Place
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SubmissionSet(ctx context.Context, id int64) (model.SubmissionSet, error) {
	ss := model.SubmissionSet{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT place_id, name FROM submission_sets WHERE id = ?`, id).Scan(&ss.PlaceID, &ss.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SubmissionSet{}, notFound(model.KindSubmissionSet, id)
	}
	return ss, err
}

func (s *Store) SubmissionSetByName(ctx context.Context, placeID int64, name string) (model.SubmissionSet, error) {
	ss := model.SubmissionSet{PlaceID: placeID, Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM submission_sets WHERE place_id = ? AND name = ?`, placeID, name).Scan(&ss.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SubmissionSet{}, notFound(model.KindSubmissionSet, strconv.FormatInt(placeID, 10)+"/"+name)
	}
	return ss, err
}

func (s *Store) SubmissionSets(ctx context.Context, placeIDs ...int64) (map[int64][]model.SubmissionSet, error) {
	out := make(map[int64][]model.SubmissionSet, len(placeIDs))
	if len(placeIDs) == 0 {
		return out, nil
	}
	err := inChunks(placeIDs, func(part []int64) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, place_id, name FROM submission_sets
			 WHERE place_id IN (`+placeholders(len(part))+`) ORDER BY id`, int64Args(part)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var ss model.SubmissionSet
			if err := rows.Scan(&ss.ID, &ss.PlaceID, &ss.Name); err != nil {
				return err
			}
			out[ss.PlaceID] = append(out[ss.PlaceID], ss)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const submissionQuery = `SELECT ` + thingColumns + `, s.set_id FROM submissions s JOIN things t ON t.id = s.id`

func scanSubmission(row interface{ Scan(...any) error }) (model.Submission, error) {
	var (
		sub              model.Submission
		submitter        sql.NullInt64
		created, updated int64
	)
	dest := append(thingDest(&sub.SubmittedThing, &submitter, &created, &updated), &sub.SetID)
	if err := row.Scan(dest...); err != nil {
		return model.Submission{}, err
	}
	finishThing(&sub.SubmittedThing, submitter, created, updated)
	return sub, nil
}

func (s *Store) Submission(ctx context.Context, id int64) (model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, submissionQuery+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, notFound(model.KindSubmission, id)
	}
	return sub, err
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) Submissions(ctx context.Context, setIDs ...int64) (map[int64][]model.Submission, error) {
	out := make(map[int64][]model.Submission, len(setIDs))
	if len(setIDs) == 0 {
		return out, nil
	}
	err := inChunks(setIDs, func(part []int64) error {
		subs, err := s.querySubmissions(ctx,
			submissionQuery+` WHERE s.set_id IN (`+placeholders(len(part))+`) ORDER BY t.created_at, t.id`,
			int64Args(part)...)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			out[sub.SetID] = append(out[sub.SetID], sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DatasetSubmissions(ctx context.Context, datasetID int64, setName string) ([]model.Submission, error) {
	return s.querySubmissions(ctx,
		submissionQuery+` JOIN submission_sets ss ON ss.id = s.set_id
		 WHERE t.dataset_id = ? AND ss.name = ? ORDER BY t.created_at, t.id`, datasetID, setName)
}

func (s *Store) Action(ctx context.Context, id int64) (model.Action, error) {
	var (
		a         = model.Action{ID: id}
		created   int64
		placeID   sql.NullInt64
		submissID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, place_id, submission_id FROM actions WHERE id = ?`, id).
		Scan(&created, &placeID, &submissID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Action{}, notFound("action", id)
	}
	if err != nil {
		return model.Action{}, err
	}
	a.CreatedAt = fromUnixNano(created)
	if placeID.Valid {
		a.PlaceID = &placeID.Int64
	}
	if submissID.Valid {
		a.SubmissionID = &submissID.Int64
	}
	return a, nil
}

func (s *Store) APIKeys(ctx context.Context, datasetID int64) ([]model.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dataset_id, key FROM api_keys WHERE dataset_id = ? ORDER BY id`, datasetID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.DatasetID, &k.Key); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) Attachments(ctx context.Context, thingIDs ...int64) (map[int64][]model.Attachment, error) {
	out := make(map[int64][]model.Attachment, len(thingIDs))
	if len(thingIDs) == 0 {
		return out, nil
	}
	err := inChunks(thingIDs, func(part []int64) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, thing_id, name, file, created_at, updated_at FROM attachments
			 WHERE thing_id IN (`+placeholders(len(part))+`) ORDER BY id`, int64Args(part)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				a                model.Attachment
				created, updated int64
			)
			if err := rows.Scan(&a.ID, &a.ThingID, &a.Name, &a.File, &created, &updated); err != nil {
				return err
			}
			a.CreatedAt = fromUnixNano(created)
			a.UpdatedAt = fromUnixNano(updated)
			out[a.ThingID] = append(out[a.ThingID], a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SocialAuths(ctx context.Context, ownerID int64) ([]model.SocialAuth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, extra_data FROM social_auths WHERE owner_id = ? ORDER BY rowid`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.SocialAuth
	for rows.Next() {
		sa := model.SocialAuth{OwnerID: ownerID}
		var extra string
		if err := rows.Scan(&sa.Provider, &extra); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(extra), &sa.ExtraData); err != nil {
			s.log.WithFields(logrus.Fields{
				"owner":    ownerID,
				"provider": sa.Provider,
				"error":    err,
			}).Warn("ignoring unreadable social auth data")
			sa.ExtraData = nil
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

func (s *Store) Groups(ctx context.Context, ownerID int64) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.dataset_id, g.name FROM owner_groups g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.owner_id = ? ORDER BY g.id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.DatasetID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func visibleFilter(includeInvisible bool) string {
	if includeInvisible {
		return ""
	}
	return ` AND t.visible = 1`
}

func (s *Store) PlaceCounts(ctx context.Context, includeInvisible bool, datasetIDs ...int64) (map[int64]int, error) {
	out := make(map[int64]int, len(datasetIDs))
	if len(datasetIDs) == 0 {
		return out, nil
	}
	err := inChunks(datasetIDs, func(part []int64) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT t.dataset_id, COUNT(*) FROM places p JOIN things t ON t.id = p.id
			 WHERE t.dataset_id IN (`+placeholders(len(part))+`)`+visibleFilter(includeInvisible)+`
			 GROUP BY t.dataset_id`, int64Args(part)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var id int64
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return err
			}
			out[id] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SubmissionSetCounts(ctx context.Context, includeInvisible bool, datasetIDs ...int64) (map[int64]map[string]int, error) {
	out := make(map[int64]map[string]int, len(datasetIDs))
	if len(datasetIDs) == 0 {
		return out, nil
	}
	err := inChunks(datasetIDs, func(part []int64) error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT t.dataset_id, ss.name, COUNT(*) FROM submissions s
			 JOIN things t ON t.id = s.id
			 JOIN submission_sets ss ON ss.id = s.set_id
			 WHERE t.dataset_id IN (`+placeholders(len(part))+`)`+visibleFilter(includeInvisible)+`
			 GROUP BY t.dataset_id, ss.name`, int64Args(part)...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				id   int64
				name string
				n    int
			)
			if err := rows.Scan(&id, &name, &n); err != nil {
				return err
			}
			if out[id] == nil {
				out[id] = make(map[string]int)
			}
			out[id][name] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
