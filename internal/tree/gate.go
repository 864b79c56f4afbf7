package tree

import "golang.org/x/sync/semaphore"

// gate admits one structural mutation at a time. A second mutation that
// arrives while one is awaiting the store is rejected, not queued.
type gate struct {
	sem *semaphore.Weighted
}

func newGate() *gate {
	return &gate{sem: semaphore.NewWeighted(1)}
}

func (g *gate) enter() bool { return g.sem.TryAcquire(1) }

func (g *gate) leave() { g.sem.Release(1) }
