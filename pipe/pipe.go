// Package pipe implements the in-memory broadcast pipe: one Writer
// appending to a shared Buffer, and any number of independent Readers
// each tracking their own position, coordinated through a
// notify.Queue so a Reader can block until more data (or EOF, or an
// error) is available without busy-polling.
package pipe

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/notify"
)

type sharedState struct {
	mu     sync.Mutex
	buffer *iokv.Buffer
	errno  int32
	closed bool
}

// Writer is the single append side of a pipe. Safe for concurrent use
// from multiple goroutines; writes are serialized internally and the
// notification fires after the lock is released, so notified readers
// never block a concurrent writer.
type Writer struct {
	shared    *sharedState
	handle    idgen.Handle
	queue     *notify.Queue
	debugHint string
	closeOnce sync.Once
}

// NewWriter whitelists handle on queue and returns a Writer appending
// to buffer.
func NewWriter(handle idgen.Handle, queue *notify.Queue, debugHint string, buffer *iokv.Buffer) *Writer {
	queue.Whitelist(handle, fmt.Sprintf("memPipe.writer %s", debugHint))
	return &Writer{
		shared:    &sharedState{buffer: buffer},
		handle:    handle,
		queue:     queue,
		debugHint: debugHint,
	}
}

// Tell returns the number of bytes written so far.
func (w *Writer) Tell() int {
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	return w.shared.buffer.Len()
}

// GetError returns the writer's sticky error code, or 0.
func (w *Writer) GetError() int32 {
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	return w.shared.errno
}

// SetError sets the writer's sticky error and wakes all readers with
// the negated errno.
func (w *Writer) SetError(errno int32) {
	w.shared.mu.Lock()
	w.shared.errno = errno
	w.shared.mu.Unlock()
	w.queue.Notify(w.handle, -int64(errno))
}

// IsClosed reports whether Close has completed.
func (w *Writer) IsClosed() bool {
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	return w.shared.closed
}

// Buffer returns the underlying buffer.
func (w *Writer) Buffer() *iokv.Buffer {
	w.shared.mu.Lock()
	defer w.shared.mu.Unlock()
	return w.shared.buffer
}

// Handle returns the writer's notification handle.
func (w *Writer) Handle() idgen.Handle {
	return w.handle
}

// Write appends data (POSIX style):
//   - a positive return is the number of bytes accepted
//   - 0 means an empty write; observers are deliberately NOT notified,
//     so waiting readers are never woken for nothing
//   - -1 means an error: the writer was closed, an errno was already
//     set, or the append itself failed (set to ENOSPC and reported)
func (w *Writer) Write(data []byte) int {
	w.shared.mu.Lock()

	if w.shared.closed {
		w.shared.mu.Unlock()
		return -1
	}
	if w.shared.errno != 0 {
		w.shared.mu.Unlock()
		return -1
	}
	if len(data) == 0 {
		w.shared.mu.Unlock()
		return 0
	}

	n, err := w.shared.buffer.Append(data)
	var notification int64
	if err == nil && n > 0 {
		notification = int64(n)
	} else {
		const enospc = 28
		w.shared.errno = enospc
		notification = -enospc
	}
	w.shared.mu.Unlock()

	w.queue.Notify(w.handle, notification)
	if notification > 0 {
		return int(notification)
	}
	return -1
}

// Close marks the writer closed and unlists it from the queue, which
// wakes every waiting reader with EOF. Calling Close twice logs a
// warning and is otherwise a no-op, matching Close on an already-shut
// connection elsewhere in this codebase.
func (w *Writer) Close() {
	first := false
	w.closeOnce.Do(func() {
		first = true
		w.shared.mu.Lock()
		w.shared.closed = true
		w.shared.mu.Unlock()
		w.queue.Unlist(w.handle)
	})
	if !first {
		slog.Warn("pipe: Writer.Close called on already closed writer", "handle", w.handle)
	}
}

func (w *Writer) shareWithReader() readerShared {
	return readerShared{shared: w.shared, writerHandle: w.handle, queue: w.queue}
}

type readerShared struct {
	shared       *sharedState
	writerHandle idgen.Handle
	queue        *notify.Queue
}

// waitAction mirrors the priority order a Reader uses to decide
// whether it can proceed without blocking.
type waitAction int

const (
	waitActionWait waitAction = iota
	waitActionDontWait
	waitActionClosed
	waitActionError
)

// Reader reads from a Writer's buffer at its own position. Not safe
// for concurrent Read calls on the same Reader; independent Readers
// over the same Writer never interfere with each other.
type Reader struct {
	ownHandle    idgen.Handle
	shared       *sharedState
	writerHandle idgen.Handle
	queue        *notify.Queue
	pos          int
	closed       bool
	errno        int32
}

func newReader(handle idgen.Handle, rs readerShared) *Reader {
	return &Reader{ownHandle: handle, shared: rs.shared, writerHandle: rs.writerHandle, queue: rs.queue}
}

// Handle returns the reader's own (distinct) notification handle.
func (r *Reader) Handle() idgen.Handle {
	return r.ownHandle
}

// Close marks the reader closed; logs (does nothing else) if already
// closed.
func (r *Reader) Close() {
	if r.closed {
		slog.Warn("pipe: Reader.Close called on already closed reader", "handle", r.ownHandle)
		return
	}
	r.closed = true
}

// IsClosed reports whether Close has been called.
func (r *Reader) IsClosed() bool {
	return r.closed
}

// GetError returns the reader's own error if set, else the writer's.
func (r *Reader) GetError() int32 {
	if r.errno != 0 {
		return r.errno
	}
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return r.shared.errno
}

// SetError sets the reader's own error without notifying anyone.
func (r *Reader) SetError(errno int32) {
	r.errno = errno
}

func (r *Reader) shouldWaitForWriter() waitAction {
	if r.errno != 0 {
		return waitActionError
	}

	r.shared.mu.Lock()
	writerPos := r.shared.buffer.Len()
	if r.pos < writerPos {
		r.shared.mu.Unlock()
		return waitActionDontWait
	}
	errno := r.shared.errno
	closed := r.shared.closed
	r.shared.mu.Unlock()

	switch {
	case errno != 0:
		return waitActionError
	case closed:
		return waitActionClosed
	default:
		return waitActionWait
	}
}

// waitForWriter implements the check (in Read) - lock (here) - check
// again (here) protocol documented on notify.Queue, so a Notify fired
// between Read's check and registering the waiter is never missed.
func (r *Reader) waitForWriter() {
	lock := r.queue.GetLock()
	switch r.shouldWaitForWriter() {
	case waitActionWait:
		r.queue.WaitAsync(r.writerHandle, "reader", lock)
	default:
		lock.Release()
	}
}

// Read fills buf with available data (POSIX style):
//   - a positive return is the number of bytes read
//   - 0 means EOF: the writer closed and all data has been consumed
//   - -1 means an error; call GetError for the code
func (r *Reader) Read(buf []byte) int {
	for !r.closed {
		switch r.shouldWaitForWriter() {
		case waitActionWait:
			r.waitForWriter()
			continue
		case waitActionClosed:
			return 0
		case waitActionError:
			return -1
		case waitActionDontWait:
		}

		r.shared.mu.Lock()
		available := r.shared.buffer.Len() - r.pos
		toRead := available
		if toRead > len(buf) {
			toRead = len(buf)
		}
		guard := r.shared.buffer.Lock()
		copy(buf[:toRead], guard.Bytes()[r.pos:r.pos+toRead])
		guard.Release()
		r.pos += toRead
		r.shared.mu.Unlock()
		return toRead
	}
	return 0
}

// Pipe bundles a Writer with the ability to mint independent Readers
// over it.
type Pipe struct {
	writer *Writer
}

// New creates a pipe whose writer uses writerHandle and appends to
// buffer.
func New(writerHandle idgen.Handle, queue *notify.Queue, hint string, buffer *iokv.Buffer) *Pipe {
	return &Pipe{writer: NewWriter(writerHandle, queue, hint, buffer)}
}

// Writer returns the pipe's writer.
func (p *Pipe) Writer() *Writer {
	return p.writer
}

// GetReader mints a new independent Reader with the given handle.
func (p *Pipe) GetReader(readerHandle idgen.Handle) *Reader {
	return newReader(readerHandle, p.writer.shareWithReader())
}
