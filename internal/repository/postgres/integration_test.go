//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/keyrelay/migration-server/internal/model"
	repo "github.com/keyrelay/migration-server/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "migration_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/migration_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newSession(userID uuid.UUID, code string) model.MigrationSession {
	now := time.Now()
	sourceDevice := "source-device"
	keyID := "key-1"
	return model.MigrationSession{
		ID:                uuid.New(),
		SessionCode:       code,
		UserID:            &userID,
		SourceDeviceID:    &sourceDevice,
		SourceDeviceKeyID: &keyID,
		SourcePublicKey:   []byte("source-pk"),
		Status:            model.StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(model.SessionExpiry),
	}
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	sr := repo.NewSessionRepository(conn)

	t.Run("full_protocol_walk", func(t *testing.T) {
		userID := uuid.New()
		created, err := sr.Create(ctx, newSession(userID, "WALKABCDE2"))
		require.NoError(t, err)
		require.Equal(t, model.StatusPending, created.Status)

		byCode, err := sr.GetByCode(ctx, "WALKABCDE2")
		require.NoError(t, err)
		require.Equal(t, created.ID, byCode.ID)

		claimed, err := sr.ClaimTarget(ctx, created.ID, model.ClaimTargetParams{
			TargetDeviceID:  "target-device",
			TargetPublicKey: []byte("target-pk"),
		})
		require.NoError(t, err)
		require.Equal(t, model.StatusAwaitingConfirmation, claimed.Status)
		require.NotNil(t, claimed.TargetDeviceID)

		// Claiming twice must fail: the target is write-once.
		_, err = sr.ClaimTarget(ctx, created.ID, model.ClaimTargetParams{
			TargetDeviceID:  "other-device",
			TargetPublicKey: []byte("other-pk"),
		})
		require.ErrorIs(t, err, model.ErrConflict)

		attached, err := sr.AttachPayload(ctx, created.ID, model.PayloadEnvelope{
			ObjectKey:          "session-x/payload-y",
			EphemeralPublicKey: []byte("ephemeral"),
			Signature:          []byte("sig"),
			SourceDeviceID:     "source-device",
			TargetDeviceID:     "target-device",
			KeyVersion:         1,
			CreatedAt:          time.Now(),
		})
		require.NoError(t, err)
		require.Equal(t, model.StatusTransferring, attached.Status)
		require.NotNil(t, attached.Payload)
		require.Equal(t, "session-x/payload-y", attached.Payload.ObjectKey)

		completed, err := sr.Complete(ctx, created.ID, time.Now())
		require.NoError(t, err)
		require.Equal(t, model.StatusCompleted, completed.Status)
		require.NotNil(t, completed.CompletedAt)

		// Completing twice must fail.
		_, err = sr.Complete(ctx, created.ID, time.Now())
		require.ErrorIs(t, err, model.ErrConflict)

		// Cancelling a terminal session must fail.
		_, err = sr.Cancel(ctx, created.ID)
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("code_uniqueness_among_active", func(t *testing.T) {
		userID := uuid.New()
		_, err := sr.Create(ctx, newSession(userID, "DUPLICATE2"))
		require.NoError(t, err)

		_, err = sr.Create(ctx, newSession(uuid.New(), "DUPLICATE2"))
		require.ErrorIs(t, err, model.ErrCodeTaken)
	})

	t.Run("quota", func(t *testing.T) {
		userID := uuid.New()
		for i := 0; i < model.MaxActiveSessionsPerUser; i++ {
			_, err := sr.Create(ctx, newSession(userID, fmt.Sprintf("QUOTAAAAA%d", i+2)))
			require.NoError(t, err)
		}

		_, err := sr.Create(ctx, newSession(userID, "QUOTAFULL2"))
		require.ErrorIs(t, err, model.ErrQuotaExceeded)
	})

	t.Run("placeholder_resolution", func(t *testing.T) {
		placeholder := model.MigrationSession{
			ID:          uuid.New(),
			SessionCode: "LEGACYCD23",
			Status:      model.StatusPending,
			CreatedAt:   time.Now(),
			ExpiresAt:   time.Now().Add(model.SessionExpiry),
		}
		created, err := sr.Create(ctx, placeholder)
		require.NoError(t, err)
		require.True(t, created.IsPlaceholder())

		userID := uuid.New()
		keyID := "key-1"
		resolved, err := sr.ResolveSource(ctx, created.ID, model.ResolveSourceParams{
			UserID:            userID,
			SourceDeviceID:    "late-source",
			SourceDeviceKeyID: &keyID,
			SourcePublicKey:   []byte("late-pk"),
		})
		require.NoError(t, err)
		require.NotNil(t, resolved.UserID)
		require.Equal(t, userID, *resolved.UserID)

		// Resolving twice must fail.
		_, err = sr.ResolveSource(ctx, created.ID, model.ResolveSourceParams{
			UserID:         uuid.New(),
			SourceDeviceID: "impostor",
		})
		require.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("attempt_counter", func(t *testing.T) {
		created, err := sr.Create(ctx, newSession(uuid.New(), "ATTEMPTSC2"))
		require.NoError(t, err)

		for want := 1; want <= 3; want++ {
			count, err := sr.IncrementAttempts(ctx, created.ID)
			require.NoError(t, err)
			require.Equal(t, want, count)
		}
	})

	t.Run("sweeping", func(t *testing.T) {
		userID := uuid.New()
		stale := newSession(userID, "SWEEPABLE2")
		stale.CreatedAt = time.Now().Add(-2 * model.AuditRetention)
		stale.ExpiresAt = time.Now().Add(-2*model.AuditRetention + model.SessionExpiry)
		created, err := sr.Create(ctx, stale)
		require.NoError(t, err)

		marked, err := sr.MarkExpired(ctx, time.Now())
		require.NoError(t, err)
		require.GreaterOrEqual(t, marked, int64(1))

		got, err := sr.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, model.StatusExpired, got.Status)

		_, err = sr.DeleteTerminatedBefore(ctx, time.Now().Add(-model.AuditRetention))
		require.NoError(t, err)

		_, err = sr.GetByID(ctx, created.ID)
		require.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDeviceRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	dr := repo.NewDeviceRepository(conn)
	userID := uuid.New()

	device := model.Device{
		ID:        "device-1",
		UserID:    userID,
		KeyID:     "key-1",
		PublicKey: []byte("pk"),
		Name:      "Pixel 9",
	}

	saved, err := dr.Register(ctx, device)
	require.NoError(t, err)
	require.Equal(t, "device-1", saved.ID)

	_, err = dr.Register(ctx, device)
	require.ErrorIs(t, err, model.ErrConflict)

	got, err := dr.GetByID(ctx, userID, "device-1")
	require.NoError(t, err)
	require.Equal(t, "key-1", got.KeyID)

	migrated, err := dr.MigrateKey(ctx, userID, "device-1", "key-2", []byte("new-pk"))
	require.NoError(t, err)
	require.Equal(t, "key-2", migrated.KeyID)
	require.Equal(t, []byte("new-pk"), migrated.PublicKey)

	list, err := dr.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, dr.Revoke(ctx, userID, "device-1"))

	_, err = dr.GetByID(ctx, userID, "device-1")
	require.ErrorIs(t, err, model.ErrNotFound)

	require.ErrorIs(t, dr.Revoke(ctx, userID, "device-1"), model.ErrNotFound)
}
