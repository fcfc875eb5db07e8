package gate

import (
	"sync/atomic"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
)

func TestGate_TryAcquire(t *testing.T) {
	g := New()

	assert.True(t, g.TryAcquire("première tâche"))
	assert.False(t, g.TryAcquire("deuxième tâche"))

	held, task := g.Status()
	assert.True(t, held)
	assert.Equal(t, "première tâche", task)

	g.Release()
	held, task = g.Status()
	assert.False(t, held)
	assert.Empty(t, task)

	assert.True(t, g.TryAcquire("deuxième tâche"))
}

func TestGate_MutualExclusion(t *testing.T) {
	g := New()

	var acquired atomic.Int64
	var wg conc.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Go(func() {
			if g.TryAcquire("course") {
				acquired.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int64(1), acquired.Load())
}

func TestGate_ReleaseWithoutAcquire(t *testing.T) {
	g := New()
	g.Release()

	held, _ := g.Status()
	assert.False(t, held)
	assert.True(t, g.TryAcquire("après release"))
}
