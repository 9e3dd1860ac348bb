package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

// SQL-backed implementations of the matching collaborators. These are the
// only places where the matching subsystem touches the database.

type sqlProfileStore struct {
	db *sql.DB
}

func newSQLProfileStore(db *sql.DB) *sqlProfileStore {
	return &sqlProfileStore{db: db}
}

const userColumns = `id, COALESCE(full_name, ''), age, COALESCE(gender, ''),
	COALESCE(location, ''), COALESCE(bio, ''), COALESCE(profile_picture, ''), is_active`

func scanUserProfile(row interface{ Scan(...any) error }) (*UserProfile, error) {
	var u UserProfile
	var age sql.NullInt64
	if err := row.Scan(&u.ID, &u.FullName, &age, &u.Gender, &u.Location, &u.Bio, &u.ProfilePicture, &u.Active); err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		u.Age = &v
	}
	return &u, nil
}

func (s *sqlProfileStore) GetUser(ctx context.Context, id int) (*UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUserProfile(row)
	if err == sql.ErrNoRows {
		return nil, notFoundf("user %d", id)
	} else if err != nil {
		return nil, collabf(err, "load user %d", id)
	}
	return u, nil
}

func (s *sqlProfileStore) ListActiveUsers(ctx context.Context, excluding int, f MatchFilters) ([]UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active = TRUE AND id <> $1`
	args := []any{excluding}
	if f.MinAge != nil {
		args = append(args, *f.MinAge)
		query += fmt.Sprintf(" AND age >= $%d", len(args))
	}
	if f.MaxAge != nil {
		args = append(args, *f.MaxAge)
		query += fmt.Sprintf(" AND age <= $%d", len(args))
	}
	// f.Interests is accepted but not applied; see the API docs.
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, collabf(err, "list active users")
	}
	defer rows.Close()

	var users []UserProfile
	for rows.Next() {
		u, err := scanUserProfile(rows)
		if err != nil {
			return nil, collabf(err, "scan user row")
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, collabf(err, "list active users")
	}
	return users, nil
}

// sqlTraitSource reads the trait vector from a user's most recent text
// analysis. Lookups go through a dataloader so a ranking pass over N
// candidates becomes a single IN query instead of N round trips. The
// loader cache is cleared after each batch, so nothing is served stale
// across requests.
type sqlTraitSource struct {
	db     *sql.DB
	loader *dataloader.Loader[int, TraitVector]
}

func newSQLTraitSource(db *sql.DB) *sqlTraitSource {
	s := &sqlTraitSource{db: db}
	s.loader = dataloader.NewBatchedLoader(
		s.batchLatest,
		dataloader.WithWait[int, TraitVector](16*time.Millisecond),
		dataloader.WithClearCacheOnBatch[int, TraitVector](),
	)
	return s
}

func (s *sqlTraitSource) LatestTraitVector(ctx context.Context, userID int) (TraitVector, error) {
	return s.loader.Load(ctx, userID)()
}

func (s *sqlTraitSource) LatestTraitVectors(ctx context.Context, userIDs []int) (map[int]TraitVector, error) {
	if len(userIDs) == 0 {
		return map[int]TraitVector{}, nil
	}
	vectors, errs := s.loader.LoadMany(ctx, userIDs)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := make(map[int]TraitVector, len(userIDs))
	for i, id := range userIDs {
		out[id] = vectors[i]
	}
	return out, nil
}

func (s *sqlTraitSource) batchLatest(ctx context.Context, keys []int) []*dataloader.Result[TraitVector] {
	results := make([]*dataloader.Result[TraitVector], len(keys))
	index := make(map[int]int, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, key := range keys {
		index[key] = i
		// Users without analysis history get an empty vector.
		results[i] = &dataloader.Result[TraitVector]{Data: TraitVector{}}
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = key
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT ON (user_id) user_id, trait_scores
		FROM text_analysis
		WHERE user_id IN (%s)
		ORDER BY user_id, created_at DESC
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		for i := range results {
			results[i] = &dataloader.Result[TraitVector]{Error: err}
		}
		return results
	}
	defer rows.Close()

	for rows.Next() {
		var userID int
		var raw []byte
		if err := rows.Scan(&userID, &raw); err != nil {
			for i := range results {
				results[i] = &dataloader.Result[TraitVector]{Error: err}
			}
			return results
		}
		tv := TraitVector{}
		if err := json.Unmarshal(raw, &tv); err != nil {
			results[index[userID]] = &dataloader.Result[TraitVector]{Error: err}
			continue
		}
		results[index[userID]] = &dataloader.Result[TraitVector]{Data: tv}
	}
	if err := rows.Err(); err != nil {
		for i := range results {
			results[i] = &dataloader.Result[TraitVector]{Error: err}
		}
	}
	return results
}

type sqlMatchStore struct {
	db *sql.DB
}

func newSQLMatchStore(db *sql.DB) *sqlMatchStore {
	return &sqlMatchStore{db: db}
}

func (s *sqlMatchStore) Insert(ctx context.Context, rec *MatchRecord) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO compatibility_matches (user_id_1, user_id_2, compatibility_score, analysis_summary)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, rec.UserID, rec.TargetID, rec.Score, rec.Summary).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return collabf(err, "insert match record")
	}
	return nil
}

func (s *sqlMatchStore) ByParticipant(ctx context.Context, userID, limit int) ([]MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id_1, user_id_2, compatibility_score, COALESCE(analysis_summary, ''), created_at
		FROM compatibility_matches
		WHERE user_id_1 = $1 OR user_id_2 = $1
		ORDER BY compatibility_score DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, collabf(err, "match records for user %d", userID)
	}
	defer rows.Close()

	var recs []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TargetID, &rec.Score, &rec.Summary, &rec.CreatedAt); err != nil {
			return nil, collabf(err, "scan match record")
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, collabf(err, "match records for user %d", userID)
	}
	return recs, nil
}
