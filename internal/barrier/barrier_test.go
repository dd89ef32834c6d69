package barrier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	assert.Equal(t, "/RT_GOMP_CLUSTERING_BARRIER", Name("", ""))
	assert.Equal(t, "/RT_GOMP_CLUSTERING_BARRIER2", Name(DefaultName, "2"))
	assert.Equal(t, "/custom7", Name("/custom", "7"))
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/dev/shm/RT_GOMP_CLUSTERING_BARRIER", Path("", DefaultName))
	assert.Equal(t, "/tmp/x/b1", Path("/tmp/x", "/b1"))
}

func TestInitErrorMatchesSentinels(t *testing.T) {
	err := error(&InitError{Name: "/b", Err: ErrAlreadyExists})
	assert.True(t, errors.Is(err, ErrBarrierInit))
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	assert.False(t, errors.Is(err, ErrInvalidParties))
	assert.Contains(t, err.Error(), "/b")
}

func TestLocalReleasesAllParties(t *testing.T) {
	const parties = 4
	b, err := NewLocal(parties)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, parties)
	for i := 0; i < parties; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Await(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, parties, b.Arrived())
}

func TestLocalBlocksUntilLastParty(t *testing.T) {
	b, err := NewLocal(3)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- b.Await(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestLocalSingleUse(t *testing.T) {
	b, err := NewLocal(1)
	require.NoError(t, err)

	require.NoError(t, b.Await(context.Background()))
	assert.ErrorIs(t, b.Await(context.Background()), ErrAlreadyReleased)
}

func TestLocalInvalidParties(t *testing.T) {
	_, err := NewLocal(0)
	assert.ErrorIs(t, err, ErrInvalidParties)
}
