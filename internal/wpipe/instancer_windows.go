//go:build windows

package wpipe

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

// instance is one kernel-level accept slot on a server pipe path.
type instance struct {
	file *win32File
	busy atomic.Bool
}

// instancer holds every instance allocated for one listener and hands out
// idle ones to Accept, growing the pool (up to limit) when every existing
// instance is busy. Scan order is deterministic (slice order), so lower
// indices are preferred — this matters only for which instance services
// the next accept, not for correctness.
type instancer struct {
	mu    sync.RWMutex
	insts []*instance
	limit uint32 // 0 means unbounded

	path   string
	sd     []byte
	config Config
}

func newInstancer(path string, sd []byte, config Config) *instancer {
	return &instancer{path: path, sd: sd, config: config, limit: config.InstanceLimit}
}

// claim returns an idle instance (and true), or (nil, false) if every
// existing instance is busy and growth is required.
func (ins *instancer) claim() (*instance, bool) {
	ins.mu.RLock()
	defer ins.mu.RUnlock()
	for _, in := range ins.insts {
		if in.busy.CompareAndSwap(false, true) {
			return in, true
		}
	}
	return nil, false
}

// grow allocates one additional instance and claims it atomically, unless
// limit has already been reached.
func (ins *instancer) grow(first bool) (*instance, error) {
	ins.mu.Lock()
	defer ins.mu.Unlock()

	if ins.limit != 0 && uint32(len(ins.insts)) >= ins.limit {
		return nil, windows.ERROR_PIPE_BUSY
	}

	h, err := makeServerPipeHandle(ins.path, ins.sd, &ins.config, first)
	if err != nil {
		return nil, err
	}
	f, err := makeWin32File(h)
	if err != nil {
		windows.Close(h)
		return nil, err
	}
	in := &instance{file: f}
	in.busy.Store(true)
	ins.insts = append(ins.insts, in)
	return in, nil
}

// release clears the busy bit, making the instance reusable by a future
// claim.
func (in *instance) release() {
	in.busy.Store(false)
}

// closeAll closes every instance this instancer has ever allocated.
func (ins *instancer) closeAll() {
	ins.mu.Lock()
	defer ins.mu.Unlock()
	for _, in := range ins.insts {
		in.file.Close() //nolint:errcheck
	}
}
