// Package iokv implements the shared append-only Buffer and the
// pluggable key-value Buffer registry (the "KV Store") that the Pipe
// layer persists its bytes through.
package iokv

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrAppendFailed is returned by Buffer.Append when the backing store
// rejects a write. The in-memory Buffer never fails; this exists for
// future bounded or persistent backends.
var ErrAppendFailed = errors.New("buffer: append failed")

// Buffer is an append-only byte vector shared by reference. Append is
// atomic; Lock yields a read-only snapshot guard held for the guard's
// lifetime. A Buffer lives as long as any Pipe or KV path holds it.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// NewBuffer returns a new, empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds data to the buffer and reports how many bytes were
// accepted. The in-memory implementation always accepts the full
// write; a 0 return (with nil error) signals the caller should treat
// the pipe as out of space (ENOSPC), a negative return is never
// produced by this implementation but is part of the contract for
// bounded/persistent backends.
func (b *Buffer) Append(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, data...)
	return len(data), nil
}

// Len returns the current length of the buffer.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Lock returns a read-only guard over the buffer's current contents.
// The guard holds the lock until Release is called; callers should
// keep the critical section short, mirroring the teacher's
// lock-copy-unlock discipline in Pipe reads.
func (b *Buffer) Lock() *ReadGuard {
	b.mu.Lock()
	return &ReadGuard{buf: b}
}

// Clone returns a Buffer sharing the same underlying storage.
func (b *Buffer) Clone() *Buffer {
	return b
}

// ReadGuard provides read-only access to a Buffer's bytes while its
// lock is held.
type ReadGuard struct {
	buf *Buffer
}

// Bytes returns the buffer's contents. Valid only until Release.
func (g *ReadGuard) Bytes() []byte {
	return g.buf.data
}

// Release drops the lock acquired by Buffer.Lock.
func (g *ReadGuard) Release() {
	g.buf.mu.Unlock()
}
