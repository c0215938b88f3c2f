// Package sync provides the synchronization primitives used by the boot
// pipeline. The bootloader never runs more than one hardware thread, so the
// only primitive needed is a spinlock that the panic path can force-unlock
// when the holder can no longer be trusted to release it.
package sync

import "sync/atomic"

// Spinlock is a lock where a caller busy-waits until it becomes available.
// It exists primarily to serialize writes to kfmt's output sink: normal
// boot-log output acquires it, and the panic handler force-releases
// it before writing the fatal message so a panic triggered while the lock is
// held never deadlocks the final diagnostic output.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock is held by the caller.
func (l *Spinlock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
	}
}

// TryAcquire attempts to acquire the lock without blocking.
func (l *Spinlock) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Release relinquishes a held lock. Calling Release on a free lock is a
// no-op.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// ForceUnlock clears the lock state unconditionally, regardless of who (if
// anyone) currently holds it. Used exclusively by the panic path: once the
// machine is about to halt, a logger stuck behind a held lock is worse than
// a theoretically torn write.
func (l *Spinlock) ForceUnlock() {
	atomic.StoreUint32(&l.state, 0)
}
