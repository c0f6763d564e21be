package storage

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narimato/narimato/internal/storage/models"
	"github.com/narimato/narimato/internal/storage/repository"
)

// countingPlayRepo counts DeleteExpired calls and returns a fixed
// deletion count.
type countingPlayRepo struct {
	calls   atomic.Int64
	deleted int64
}

func (r *countingPlayRepo) Create(context.Context, *models.Play) error { return nil }
func (r *countingPlayRepo) Get(context.Context, string) (*models.Play, error) {
	return nil, repository.ErrNotFound
}
func (r *countingPlayRepo) Update(context.Context, *models.Play, int64) error { return nil }
func (r *countingPlayRepo) ListCompleted(context.Context, string, int) ([]*models.Play, error) {
	return nil, nil
}
func (r *countingPlayRepo) ListStaleVoting(context.Context, time.Time) ([]*models.Play, error) {
	return nil, nil
}

func (r *countingPlayRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	r.calls.Add(1)
	return r.deleted, nil
}

func TestExpirySweeper_SweepNow(t *testing.T) {
	repo := &countingPlayRepo{deleted: 3}
	sweeper := NewExpirySweeper(repo, nil)

	deleted, err := sweeper.SweepNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	_, sweeps, total, lastErr := sweeper.Status()
	assert.Equal(t, 1, sweeps)
	assert.Equal(t, int64(3), total)
	assert.NoError(t, lastErr)
}

func TestExpirySweeper_StartStop(t *testing.T) {
	repo := &countingPlayRepo{}
	sweeper := NewExpirySweeper(repo, &SweeperConfig{Interval: time.Hour})

	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start())

	running, _, _, _ := sweeper.Status()
	assert.True(t, running)

	sweeper.Stop()
	running, _, _, _ = sweeper.Status()
	assert.False(t, running)

	// Stop again is a no-op.
	sweeper.Stop()
}

func TestExpirySweeper_StartImmediately(t *testing.T) {
	repo := &countingPlayRepo{deleted: 1}
	done := make(chan struct{})
	sweeper := NewExpirySweeper(repo, &SweeperConfig{
		Interval:         time.Hour,
		StartImmediately: true,
		OnSweepComplete: func(deleted int64, err error) {
			assert.Equal(t, int64(1), deleted)
			assert.NoError(t, err)
			close(done)
		},
	})

	require.NoError(t, sweeper.Start())
	defer sweeper.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("initial sweep did not run")
	}
	assert.Equal(t, int64(1), repo.calls.Load())
}
