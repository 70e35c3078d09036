package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockRegistry_AcquireReleaseCycle(t *testing.T) {
	r := NewLockRegistry()

	assert.True(t, r.TryAcquire("919876543210"))
	assert.True(t, r.Held("919876543210"))
	assert.False(t, r.TryAcquire("919876543210"), "second acquire must fail while held")
	assert.True(t, r.TryAcquire("919812345678"), "other phones are independent")

	r.Release("919876543210")
	assert.False(t, r.Held("919876543210"))
	assert.True(t, r.TryAcquire("919876543210"))
}

func TestLockRegistry_ReleaseUnheldIsNoop(t *testing.T) {
	r := NewLockRegistry()
	r.Release("919876543210")
	assert.True(t, r.TryAcquire("919876543210"))
}

func TestLockRegistry_ConcurrentAcquireSingleWinner(t *testing.T) {
	r := NewLockRegistry()

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryAcquire("919876543210") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one goroutine may win the lock")
}
