package risk

import (
	"hash/fnv"
	"sync"
)

const fenceStripes = 32

// cacheFence orders read-through fills against invalidations. A fill carries
// the generation observed before its store read and is dropped when an
// invalidation bumped the generation in the meantime. Fill and invalidate run
// under the same per-user stripe lock, so a stale fill can never land after
// the invalidation that should have removed it.
type cacheFence struct {
	stripes [fenceStripes]fenceStripe
}

type fenceStripe struct {
	mu   sync.Mutex
	gens map[string]uint64
}

func (f *cacheFence) stripe(userID string) *fenceStripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &f.stripes[h.Sum32()%fenceStripes]
}

// generation returns the user's current invalidation count.
func (f *cacheFence) generation(userID string) uint64 {
	st := f.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gens[userID]
}

// fill runs write only if no invalidation happened since gen was read.
func (f *cacheFence) fill(userID string, gen uint64, write func()) bool {
	st := f.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gens[userID] != gen {
		return false
	}
	write()
	return true
}

// invalidate bumps the generation and runs drop.
func (f *cacheFence) invalidate(userID string, drop func()) {
	st := f.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gens == nil {
		st.gens = make(map[string]uint64)
	}
	st.gens[userID]++
	drop()
}
