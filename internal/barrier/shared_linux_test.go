//go:build linux

package barrier

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedReleasesAllParties(t *testing.T) {
	dir := t.TempDir()
	name := Name(DefaultName, "1")
	const parties = 3

	owner, err := Create(dir, name, parties)
	require.NoError(t, err)
	defer owner.Close()
	assert.Equal(t, parties, owner.Parties())

	var wg sync.WaitGroup
	errs := make(chan error, parties)
	for i := 0; i < parties; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := Open(dir, name)
			if err != nil {
				errs <- err
				return
			}
			defer b.Close()
			errs <- b.Await(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.True(t, owner.Released())
	assert.Equal(t, parties, owner.Arrived())
}

func TestSharedBlocksUntilLastParty(t *testing.T) {
	dir := t.TempDir()
	b, err := Create(dir, "/partial", 3)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
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
	assert.False(t, b.Released())
}

func TestSharedLateArrivalReleasesWaiters(t *testing.T) {
	dir := t.TempDir()
	b, err := Create(dir, "/late", 2)
	require.NoError(t, err)
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- b.Await(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Await(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestSharedSingleUse(t *testing.T) {
	dir := t.TempDir()
	b, err := Create(dir, "/once", 1)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Await(context.Background()))
	assert.ErrorIs(t, b.Await(context.Background()), ErrAlreadyReleased)
}

func TestSharedCreateErrors(t *testing.T) {
	dir := t.TempDir()

	b, err := Create(dir, "/dup", 2)
	require.NoError(t, err)
	defer b.Close()

	_, err = Create(dir, "/dup", 2)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, err, ErrBarrierInit)

	_, err = Create(dir, "/zero", 0)
	assert.ErrorIs(t, err, ErrInvalidParties)
	assert.ErrorIs(t, err, ErrBarrierInit)
}

func TestSharedOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, "/missing")
	assert.ErrorIs(t, err, ErrBarrierInit)

	require.NoError(t, os.WriteFile(Path(dir, "/garbage"), make([]byte, objectSize), 0600))
	_, err = Open(dir, "/garbage")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSharedRemove(t *testing.T) {
	dir := t.TempDir()
	b, err := Create(dir, "/gone", 1)
	require.NoError(t, err)

	require.NoError(t, Remove(dir, "/gone"))
	_, err = os.Stat(Path(dir, "/gone"))
	assert.True(t, os.IsNotExist(err))

	// the mapping outlives the name
	assert.NoError(t, b.Await(context.Background()))
	assert.NoError(t, b.Close())

	assert.NoError(t, Remove(dir, "/gone"))

	// the name can be reused once removed
	again, err := Create(dir, "/gone", 1)
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}
