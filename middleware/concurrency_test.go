package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var mu sync.Mutex
	order := make([]int, 0, 4)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := km.Lock("conversation-1")
			defer unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, order, 4)
}

func TestKeyedMutexDoesNotBlockDifferentKeys(t *testing.T) {
	km := NewKeyedMutex()
	done := make(chan struct{})

	unlockA := km.Lock("conversation-a")
	go func() {
		unlockB := km.Lock("conversation-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
	unlockA()
}

func TestDeduplicatorCollapsesConcurrentIdenticalRequests(t *testing.T) {
	d := NewDeduplicator()
	fp := Fingerprint("user-1", "conv-1", "hello")

	wait, isNew := d.TryStart(fp)
	require.True(t, isNew)
	require.Nil(t, wait)

	waitSecond, isNewSecond := d.TryStart(fp)
	require.False(t, isNewSecond)
	require.NotNil(t, waitSecond)

	resultCh := make(chan []byte, 1)
	go func() {
		resp, code, err := waitSecond()
		require.NoError(t, err)
		require.Equal(t, 200, code)
		resultCh <- resp
	}()

	d.Complete(fp, []byte("response body"), 200, nil)

	select {
	case resp := <-resultCh:
		require.Equal(t, "response body", string(resp))
	case <-time.After(time.Second):
		t.Fatal("waiter never observed completion")
	}

	require.Equal(t, 0, d.InFlightCount())
}

func TestFingerprintDiffersByCaller(t *testing.T) {
	a := Fingerprint("user-1", "conv-1", "hello")
	b := Fingerprint("user-2", "conv-1", "hello")
	require.NotEqual(t, a, b)
}

func TestAtomicCounterIncAddGetReset(t *testing.T) {
	var c AtomicCounter
	require.EqualValues(t, 1, c.Inc())
	require.EqualValues(t, 6, c.Add(5))
	require.EqualValues(t, 6, c.Get())
	require.EqualValues(t, 6, c.Reset())
	require.EqualValues(t, 0, c.Get())
}
