package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdmissionPoolRefusesAtCapacity(t *testing.T) {
	pool := NewAdmissionPool(2)

	require.NoError(t, pool.Acquire())
	require.NoError(t, pool.Acquire())
	require.Equal(t, 2, pool.Active())

	err := pool.Acquire()
	require.ErrorIs(t, err, ErrPoolFull)
}

func TestAdmissionPoolReleaseFreesOnePermit(t *testing.T) {
	pool := NewAdmissionPool(1)
	require.NoError(t, pool.Acquire())
	require.Error(t, pool.Acquire())

	pool.Release()
	require.Equal(t, 0, pool.Active())
	require.NoError(t, pool.Acquire())
}
