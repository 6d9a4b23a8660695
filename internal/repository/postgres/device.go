package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/keyrelay/migration-server/internal/model"
)

var _ model.DeviceKeyRegistry = (*DeviceRepository)(nil)

const deviceColumns = `id, user_id, key_id, public_key, name, created_at, updated_at, revoked_at`

type DeviceRepository struct {
	db *Connection
}

func NewDeviceRepository(db *Connection) *DeviceRepository {
	return &DeviceRepository{
		db: db,
	}
}

func scanDevice(row sessionRow) (model.Device, error) {
	var d model.Device
	err := row.Scan(
		&d.ID, &d.UserID, &d.KeyID, &d.PublicKey, &d.Name,
		&d.CreatedAt, &d.UpdatedAt, &d.RevokedAt,
	)
	if err != nil {
		return model.Device{}, err
	}
	return d, nil
}

func (r *DeviceRepository) Register(ctx context.Context, device model.Device) (model.Device, error) {
	query := `INSERT INTO devices (id, user_id, key_id, public_key, name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + deviceColumns

	saved, err := scanDevice(r.db.QueryRow(ctx, query,
		device.ID, device.UserID, device.KeyID, device.PublicKey, device.Name,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Device{}, model.ErrConflict
		}
		return model.Device{}, fmt.Errorf("failed to register device: %w", err)
	}

	return saved, nil
}

func (r *DeviceRepository) GetByID(ctx context.Context, userID uuid.UUID, deviceID string) (model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE user_id = $1 AND id = $2 AND revoked_at IS NULL`

	device, err := scanDevice(r.db.QueryRow(ctx, query, userID, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Device{}, model.ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to get device by id: %w", err)
	}

	return device, nil
}

func (r *DeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

func (r *DeviceRepository) Revoke(ctx context.Context, userID uuid.UUID, deviceID string) error {
	query := `UPDATE devices SET revoked_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND revoked_at IS NULL`

	cmd, err := r.db.Exec(ctx, query, userID, deviceID)
	if err != nil {
		return fmt.Errorf("failed to revoke device: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	return nil
}

func (r *DeviceRepository) MigrateKey(ctx context.Context, userID uuid.UUID, deviceID, keyID string, publicKey []byte) (model.Device, error) {
	query := `UPDATE devices SET key_id = $3, public_key = $4, updated_at = NOW()
		WHERE user_id = $1 AND id = $2 AND revoked_at IS NULL
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.db.QueryRow(ctx, query, userID, deviceID, keyID, publicKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Device{}, model.ErrNotFound
		}
		return model.Device{}, fmt.Errorf("failed to migrate device key: %w", err)
	}

	return device, nil
}
