package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	servermocks "github.com/keyrelay/migration-server/internal/mocks"
	"github.com/keyrelay/migration-server/internal/model"
	"github.com/keyrelay/migration-server/internal/testutil"
)

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	storage := &servermocks.Storage{}
	sweeper := NewSweeper(sessions, storage, time.Minute, testutil.MakeNoopLogger())

	sessions.On("MarkExpired", mock.Anything, mock.Anything).Return(int64(2), nil)
	sessions.On("DeleteTerminatedBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) >= model.AuditRetention
	})).Return([]string{"session-a/payload-1", "session-b/payload-2"}, nil)
	storage.On("Delete", mock.Anything, "session-a/payload-1").Return(nil)
	storage.On("Delete", mock.Anything, "session-b/payload-2").Return(nil)

	sweeper.Sweep(ctx)

	sessions.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestSweeper_Sweep_BlobDeletionFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	sessions := &servermocks.SessionStore{}
	storage := &servermocks.Storage{}
	sweeper := NewSweeper(sessions, storage, time.Minute, testutil.MakeNoopLogger())

	sessions.On("MarkExpired", mock.Anything, mock.Anything).Return(int64(0), nil)
	sessions.On("DeleteTerminatedBefore", mock.Anything, mock.Anything).
		Return([]string{"session-a/payload-1", "session-b/payload-2"}, nil)
	storage.On("Delete", mock.Anything, "session-a/payload-1").Return(context.DeadlineExceeded)
	storage.On("Delete", mock.Anything, "session-b/payload-2").Return(nil)

	sweeper.Sweep(ctx)

	storage.AssertNumberOfCalls(t, "Delete", 2)
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	sessions := &servermocks.SessionStore{}
	storage := &servermocks.Storage{}
	sweeper := NewSweeper(sessions, storage, 5*time.Millisecond, testutil.MakeNoopLogger())

	sessions.On("MarkExpired", mock.Anything, mock.Anything).Return(int64(0), nil)
	sessions.On("DeleteTerminatedBefore", mock.Anything, mock.Anything).Return([]string(nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
