package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresRepository reads profiles and questionnaire responses from
// PostgreSQL. Responses are stored as one JSONB document per user.
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRepository creates a repository backed by the given handle.
// A nil logger discards output.
func NewPostgresRepository(db *sql.DB, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("profile: open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("profile: ping postgres: %w", err)
	}
	return db, nil
}

func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	const query = `
		SELECT id, name, email, role, organization, intake_complete
		FROM profiles
		WHERE id = $1`

	var p Profile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.ID, &p.Name, &p.Email, &p.Role, &p.Organization, &p.IntakeComplete,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get profile: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) ListCompletedProfiles(ctx context.Context, excluding string) ([]Profile, error) {
	const query = `
		SELECT id, name, email, role, organization, intake_complete
		FROM profiles
		WHERE intake_complete AND id <> $1
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, excluding)
	if err != nil {
		return nil, fmt.Errorf("profile: list completed: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.Organization, &p.IntakeComplete); err != nil {
			return nil, fmt.Errorf("profile: scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: list completed: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetResponses(ctx context.Context, userID string) (*ResponseSet, error) {
	const query = `SELECT answers FROM profile_responses WHERE user_id = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile: get responses: %w", err)
	}
	return decodeAnswers(userID, raw)
}

// GetResponsesBatch loads responses for many users with a single query.
// Users without responses are absent from the result, as are users whose
// stored answers cannot be decoded; those are logged and skipped.
func (r *PostgresRepository) GetResponsesBatch(ctx context.Context, userIDs []string) (map[string]*ResponseSet, error) {
	out := make(map[string]*ResponseSet, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	const query = `SELECT user_id, answers FROM profile_responses WHERE user_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("profile: batch responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("profile: scan responses: %w", err)
		}
		rs, err := decodeAnswers(id, raw)
		if err != nil {
			r.logger.Warn("skipping undecodable responses", zap.String("user_id", id), zap.Error(err))
			continue
		}
		out[id] = rs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profile: batch responses: %w", err)
	}
	return out, nil
}

// UpsertProfile writes a profile. Used by seeding and tests.
func (r *PostgresRepository) UpsertProfile(ctx context.Context, p Profile) error {
	const query = `
		INSERT INTO profiles (id, name, email, role, organization, intake_complete)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			organization = EXCLUDED.organization,
			intake_complete = EXCLUDED.intake_complete`

	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Email, p.Role, p.Organization, p.IntakeComplete)
	if err != nil {
		return fmt.Errorf("profile: upsert profile: %w", err)
	}
	return nil
}

// UpsertResponses writes a response set as JSONB.
func (r *PostgresRepository) UpsertResponses(ctx context.Context, rs ResponseSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(rs.Answers)
	if err != nil {
		return fmt.Errorf("profile: marshal answers: %w", err)
	}

	const query = `
		INSERT INTO profile_responses (user_id, answers, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			answers = EXCLUDED.answers,
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, rs.UserID, raw); err != nil {
		return fmt.Errorf("profile: upsert responses: %w", err)
	}
	return nil
}

func decodeAnswers(userID string, raw []byte) (*ResponseSet, error) {
	answers := make(map[QuestionID]Answer)
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("profile: decode answers for %s: %w", userID, err)
	}
	return &ResponseSet{UserID: userID, Answers: answers}, nil
}

// Seed upserts every profile and response set in fx.
func (r *PostgresRepository) Seed(ctx context.Context, fx *Fixtures) error {
	for _, p := range fx.Profiles {
		if err := r.UpsertProfile(ctx, p); err != nil {
			return err
		}
	}
	for _, rs := range fx.Responses {
		if err := r.UpsertResponses(ctx, rs); err != nil {
			return err
		}
	}
	return nil
}
