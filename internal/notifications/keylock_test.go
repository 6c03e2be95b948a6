package notifications

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	l := newKeyLock()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("k")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, l.size())
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	l := newKeyLock()

	unlockA := l.Lock("a")
	// would deadlock if keys shared a mutex
	unlockB := l.Lock("b")
	assert.Equal(t, 2, l.size())

	unlockB()
	unlockA()
	assert.Equal(t, 0, l.size())
}
