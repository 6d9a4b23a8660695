package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keyrelay/migration-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

const uniqueViolation = "23505"

const sessionColumns = `id, session_code, user_id, source_device_id, source_device_key_id, source_public_key,
		target_device_id, target_device_key_id, target_public_key, status,
		payload_object_key, payload_ephemeral_public_key, payload_signature,
		payload_source_device_id, payload_target_device_id, payload_signing_key_id,
		payload_key_version, payload_created_at,
		attempt_count, created_at, expires_at, completed_at`

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

type sessionRow interface {
	Scan(dest ...any) error
}

func scanSession(row sessionRow) (model.MigrationSession, error) {
	var (
		s model.MigrationSession

		payloadObjectKey     *string
		payloadEphemeralKey  []byte
		payloadSignature     []byte
		payloadSourceDevice  *string
		payloadTargetDevice  *string
		payloadSigningKeyID  *string
		payloadKeyVersion    *int
		payloadCreatedAt     *time.Time
	)

	err := row.Scan(
		&s.ID, &s.SessionCode, &s.UserID, &s.SourceDeviceID, &s.SourceDeviceKeyID, &s.SourcePublicKey,
		&s.TargetDeviceID, &s.TargetDeviceKeyID, &s.TargetPublicKey, &s.Status,
		&payloadObjectKey, &payloadEphemeralKey, &payloadSignature,
		&payloadSourceDevice, &payloadTargetDevice, &payloadSigningKeyID,
		&payloadKeyVersion, &payloadCreatedAt,
		&s.AttemptCount, &s.CreatedAt, &s.ExpiresAt, &s.CompletedAt,
	)
	if err != nil {
		return model.MigrationSession{}, err
	}

	if payloadObjectKey != nil {
		envelope := model.PayloadEnvelope{
			ObjectKey:          *payloadObjectKey,
			EphemeralPublicKey: payloadEphemeralKey,
			Signature:          payloadSignature,
			SigningKeyID:       payloadSigningKeyID,
		}
		if payloadSourceDevice != nil {
			envelope.SourceDeviceID = *payloadSourceDevice
		}
		if payloadTargetDevice != nil {
			envelope.TargetDeviceID = *payloadTargetDevice
		}
		if payloadKeyVersion != nil {
			envelope.KeyVersion = *payloadKeyVersion
		}
		if payloadCreatedAt != nil {
			envelope.CreatedAt = *payloadCreatedAt
		}
		s.Payload = &envelope
	}

	return s, nil
}

// Create inserts the session inside a transaction that serializes per-user
// creation via an advisory lock, so a burst of concurrent initiations cannot
// exceed the active session cap. Placeholder sessions skip the quota guard.
func (r *SessionRepository) Create(ctx context.Context, session model.MigrationSession) (model.MigrationSession, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.MigrationSession{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if session.UserID != nil {
		_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, session.UserID.String())
		if err != nil {
			return model.MigrationSession{}, fmt.Errorf("failed to take user lock: %w", err)
		}

		var active int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM migration_sessions
			WHERE user_id = $1
			  AND status IN ('PENDING', 'AWAITING_CONFIRMATION', 'TRANSFERRING')
			  AND expires_at > NOW()`, *session.UserID,
		).Scan(&active)
		if err != nil {
			return model.MigrationSession{}, fmt.Errorf("failed to count active sessions: %w", err)
		}
		if active >= model.MaxActiveSessionsPerUser {
			return model.MigrationSession{}, model.ErrQuotaExceeded
		}
	}

	query := `INSERT INTO migration_sessions
		(id, session_code, user_id, source_device_id, source_device_key_id, source_public_key, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + sessionColumns

	saved, err := scanSession(tx.QueryRow(ctx, query,
		session.ID, session.SessionCode, session.UserID,
		session.SourceDeviceID, session.SourceDeviceKeyID, session.SourcePublicKey,
		string(session.Status), session.CreatedAt, session.ExpiresAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.MigrationSession{}, model.ErrCodeTaken
		}
		return model.MigrationSession{}, fmt.Errorf("failed to create migration session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.MigrationSession{}, fmt.Errorf("failed to commit session creation: %w", err)
	}

	return saved, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (model.MigrationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM migration_sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrNotFound
		}
		return model.MigrationSession{}, fmt.Errorf("failed to get session by id: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) GetByCode(ctx context.Context, code string) (model.MigrationSession, error) {
	// Terminal sessions keep their code for the audit window, so the most
	// recent row wins; at most one row per code can be active.
	query := `SELECT ` + sessionColumns + ` FROM migration_sessions
		WHERE session_code = $1
		ORDER BY created_at DESC
		LIMIT 1`

	session, err := scanSession(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrNotFound
		}
		return model.MigrationSession{}, fmt.Errorf("failed to get session by code: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) ClaimTarget(ctx context.Context, id uuid.UUID, params model.ClaimTargetParams) (model.MigrationSession, error) {
	query := `UPDATE migration_sessions
		SET target_device_id = $2, target_device_key_id = $3, target_public_key = $4,
		    status = 'AWAITING_CONFIRMATION'
		WHERE id = $1 AND status = 'PENDING' AND target_device_id IS NULL AND expires_at > NOW()
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query,
		id, params.TargetDeviceID, params.TargetDeviceKeyID, params.TargetPublicKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrConflict
		}
		return model.MigrationSession{}, fmt.Errorf("failed to claim target: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) AttachPayload(ctx context.Context, id uuid.UUID, payload model.PayloadEnvelope) (model.MigrationSession, error) {
	query := `UPDATE migration_sessions
		SET payload_object_key = $2, payload_ephemeral_public_key = $3, payload_signature = $4,
		    payload_source_device_id = $5, payload_target_device_id = $6, payload_signing_key_id = $7,
		    payload_key_version = $8, payload_created_at = $9,
		    status = 'TRANSFERRING'
		WHERE id = $1 AND status IN ('PENDING', 'AWAITING_CONFIRMATION') AND expires_at > NOW()
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query,
		id, payload.ObjectKey, payload.EphemeralPublicKey, payload.Signature,
		payload.SourceDeviceID, payload.TargetDeviceID, payload.SigningKeyID,
		payload.KeyVersion, payload.CreatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrConflict
		}
		return model.MigrationSession{}, fmt.Errorf("failed to attach payload: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) ResolveSource(ctx context.Context, id uuid.UUID, params model.ResolveSourceParams) (model.MigrationSession, error) {
	query := `UPDATE migration_sessions
		SET user_id = $2, source_device_id = $3, source_device_key_id = $4, source_public_key = $5
		WHERE id = $1 AND user_id IS NULL
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query,
		id, params.UserID, params.SourceDeviceID, params.SourceDeviceKeyID, params.SourcePublicKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrConflict
		}
		return model.MigrationSession{}, fmt.Errorf("failed to resolve session source: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) Complete(ctx context.Context, id uuid.UUID, completedAt time.Time) (model.MigrationSession, error) {
	query := `UPDATE migration_sessions
		SET status = 'COMPLETED', completed_at = $2
		WHERE id = $1 AND status = 'TRANSFERRING' AND expires_at > NOW()
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query, id, completedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrConflict
		}
		return model.MigrationSession{}, fmt.Errorf("failed to complete session: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) Cancel(ctx context.Context, id uuid.UUID) (model.MigrationSession, error) {
	query := `UPDATE migration_sessions
		SET status = 'CANCELLED'
		WHERE id = $1 AND status IN ('PENDING', 'AWAITING_CONFIRMATION', 'TRANSFERRING')
		RETURNING ` + sessionColumns

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MigrationSession{}, model.ErrConflict
		}
		return model.MigrationSession{}, fmt.Errorf("failed to cancel session: %w", err)
	}

	return session, nil
}

func (r *SessionRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	query := `UPDATE migration_sessions
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count`

	var count int
	err := r.db.QueryRow(ctx, query, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, model.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment attempt count: %w", err)
	}

	return count, nil
}

func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM migration_sessions
		WHERE user_id = $1
		  AND status IN ('PENDING', 'AWAITING_CONFIRMATION', 'TRANSFERRING')
		  AND expires_at > NOW()`

	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return count, nil
}

func (r *SessionRepository) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE migration_sessions
		SET status = 'EXPIRED'
		WHERE status IN ('PENDING', 'AWAITING_CONFIRMATION', 'TRANSFERRING') AND expires_at <= $1`

	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark expired sessions: %w", err)
	}

	return cmd.RowsAffected(), nil
}

func (r *SessionRepository) DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `DELETE FROM migration_sessions
		WHERE status IN ('COMPLETED', 'EXPIRED', 'CANCELLED') AND created_at < $1
		RETURNING payload_object_key`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete terminated sessions: %w", err)
	}
	defer rows.Close()

	var objectKeys []string
	for rows.Next() {
		var key *string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key != nil && *key != "" {
			objectKeys = append(objectKeys, *key)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return objectKeys, nil
}
