package lockset

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockerSerializesSameKey(t *testing.T) {
	k := NewKeyLocker()

	var counter int

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			k.Lock(7)
			counter++
			k.Unlock(7)
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyLockerIndependentKeys(t *testing.T) {
	k := NewKeyLocker()

	k.Lock(1)

	done := make(chan struct{})

	go func() {
		// A different key must not block behind key 1.
		k.Lock(2)
		k.Unlock(2)
		close(done)
	}()

	<-done

	k.Unlock(1)
}

func TestKeyLockerDiscardsIdleEntries(t *testing.T) {
	k := NewKeyLocker()

	k.Lock(42)
	k.Unlock(42)

	k.mu.Lock()
	defer k.mu.Unlock()

	assert.Empty(t, k.locks)
}
