package resourcemgr

import (
	"fmt"
	"sync"
)

// GetNextResult is the tri-state outcome of ResourceInput.GetNext
// (original_source resourceinput.h's return codes: 0 no input ready yet,
// 1 input produced, 10 prepare-to-terminate).
type GetNextResult int

const (
	// NoInput means the range is exhausted and no terminate has been
	// requested; the caller should retry after WaitForUpdate.
	NoInput GetNextResult = 0
	// InputProduced means refDir holds a valid next reference directory.
	InputProduced GetNextResult = 1
	// PrepareTerminate means the master has signaled the range is done
	// and workers should wind down.
	PrepareTerminate GetNextResult = 10
)

// ResourceInput is the master-to-worker range-distribution state for one
// namespace traversal: a shared cursor over a namespace's reference
// directories, guarded by a mutex and signaled via two condition
// variables mirroring original_source's "complete" and "updated"
// pthread_cond_t pair (original_source resourceinput.h's RESOURCEINPUT).
type ResourceInput struct {
	mu       sync.Mutex
	complete *sync.Cond // signaled when a client finishes consuming an index
	updated  *sync.Cond // signaled when the master advances refindex or sets prepterm

	logPath string
	ns      string

	refIndex int // next unclaimed reference-dir index
	refMax   int // one past the last valid index

	clientCount int  // workers currently holding a claimed index
	prepterm    bool // master has requested termination of this range
	terminated  bool
}

// NewResourceInput constructs an empty ResourceInput; SetLogPath and
// SetRange must be called before GetNext is usable.
func NewResourceInput() *ResourceInput {
	ri := &ResourceInput{}
	ri.complete = sync.NewCond(&ri.mu)
	ri.updated = sync.NewCond(&ri.mu)
	return ri
}

// SetLogPath records which resourcelog path this input's output will be
// written to, for worker bookkeeping (original_source resourceinput_setlogpath).
func (ri *ResourceInput) SetLogPath(ns, logPath string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.ns = ns
	ri.logPath = logPath
}

// SetRange installs a new [start, end) reference-directory range for
// workers to consume and wakes anyone blocked in WaitForUpdate
// (original_source resourceinput_setrange).
func (ri *ResourceInput) SetRange(start, end int) error {
	if start > end {
		return fmt.Errorf("resourcemgr: SetRange start %d exceeds end %d", start, end)
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.refIndex = start
	ri.refMax = end
	ri.prepterm = false
	ri.updated.Broadcast()
	return nil
}

// GetNext claims the next reference-dir index in the current range
// without waiting: it returns InputProduced with the index, or, once the
// range is exhausted, PrepareTerminate if termination was requested and
// NoInput otherwise; callers then wait in WaitForUpdate
// (original_source resourceinput_getnext).
func (ri *ResourceInput) GetNext() (GetNextResult, int) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.refIndex < ri.refMax {
		idx := ri.refIndex
		ri.refIndex++
		ri.clientCount++
		return InputProduced, idx
	}
	if ri.prepterm {
		return PrepareTerminate, -1
	}
	return NoInput, -1
}

// WaitForUpdate blocks until the master advances the range, sets
// prepterm, or the input is destroyed (original_source
// resourceinput_waitforupdate). Callers should re-call GetNext after
// this returns.
func (ri *ResourceInput) WaitForUpdate() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	for ri.refIndex >= ri.refMax && !ri.prepterm && !ri.terminated {
		ri.updated.Wait()
	}
}

// Release marks one previously-claimed index as fully processed by the
// calling worker, decrementing the outstanding client count and waking
// anyone in WaitForComp (original_source has no single named
// counterpart; mirrors the client bookkeeping resourceinput.h
// describes around GetNext/complete).
func (ri *ResourceInput) Release() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.clientCount > 0 {
		ri.clientCount--
	}
	if ri.clientCount == 0 {
		ri.complete.Broadcast()
	}
}

// WaitForComp blocks until every claimed index has been released
// (original_source resourceinput_waitforcomp) — used by the master
// before reusing or tearing down a ResourceInput.
func (ri *ResourceInput) WaitForComp() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	for ri.clientCount > 0 {
		ri.complete.Wait()
	}
}

// Term requests that workers wind down once the current range is
// exhausted: no new range will be supplied, and GetNext starts
// returning PrepareTerminate once refIndex reaches refMax
// (original_source resourceinput_term).
func (ri *ResourceInput) Term() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.prepterm = true
	ri.updated.Broadcast()
}

// WaitForTerm blocks until Term has been called and every claimed index
// has been released (original_source resourceinput_waitforterm).
func (ri *ResourceInput) WaitForTerm() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	for !ri.prepterm || ri.clientCount > 0 {
		if ri.prepterm && ri.clientCount > 0 {
			ri.complete.Wait()
			continue
		}
		ri.updated.Wait()
	}
}

// Purge empties the current range without requesting termination,
// discarding any unclaimed indices (original_source resourceinput_purge).
func (ri *ResourceInput) Purge() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.refIndex = ri.refMax
	ri.updated.Broadcast()
}

// Destroy tears down the ResourceInput, waking every waiter so none
// blocks forever (original_source resourceinput_destroy).
func (ri *ResourceInput) Destroy() {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.terminated = true
	ri.updated.Broadcast()
	ri.complete.Broadcast()
}
