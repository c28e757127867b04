package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIsExclusivePerSource(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	lock, err := s.Lock("react")
	require.NoError(t, err)

	// A second Store over the same root stands in for a second process:
	// it has its own in-process mutexes, so only the lock file stops it.
	_, err = NewStore(s.DataRoot()).Lock("react")
	assert.Error(t, err)

	lock.Unlock()

	lock2, err := s.Lock("react")
	require.NoError(t, err)
	lock2.Unlock()
}

func TestLockIsIndependentPerSource(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))
	require.NoError(t, s.Create("vue"))

	l1, err := s.Lock("react")
	require.NoError(t, err)
	defer l1.Unlock()

	l2, err := s.Lock("vue")
	require.NoError(t, err)
	l2.Unlock()
}

func TestUnlockIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create("react"))

	lock, err := s.Lock("react")
	require.NoError(t, err)
	lock.Unlock()
	assert.NotPanics(t, func() { lock.Unlock() })
}
