// Package sysruntime is the single broker translating an actor's
// blocking I/O calls (SetupStdHandles, OpenRead, OpenWrite, Read,
// Write, Close) into operations on the DAG, the pipe pool, and the
// per-node merge readers.
//
// The original kept one single-threaded event loop that serialized
// access to its channel table by construction (a single owner, no
// shared mutable state) and pushed long-running read/write/close
// operations onto a FuturesUnordered so the loop itself never
// blocked. Go has no equivalent ownership discipline forcing that
// shape, and goroutines are cheap, so this runtime collapses it to
// the idiomatic Go equivalent: a mutex-protected channel table plus
// one goroutine per in-flight operation. The observable behavior —
// other actors are never blocked behind one slow read — is the same.
package sysruntime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/olpa/ailets-sub000/dag"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/mergereader"
	"github.com/olpa/ailets-sub000/notify"
	"github.com/olpa/ailets-sub000/pipepool"
)

// ChannelHandle globally identifies one pipe endpoint (reader or
// writer), independent of which actor opened it.
type ChannelHandle int64

func (h ChannelHandle) String() string { return fmt.Sprintf("chan#%d", h) }

type channelKind int

const (
	readerChannel channelKind = iota
	writerChannel
)

// channelEntry is either a reader slot (nil while a read is in
// flight, mirroring the original's Option<MergeReader> "taken" state)
// or a writer tagging its owning actor.
type channelEntry struct {
	kind       channelKind
	reader     *mergereader.MergeReader
	nodeHandle idgen.Handle
}

// StdHandles are the pre-opened stdin/stdout channels handed to an
// actor just before it runs.
type StdHandles struct {
	Stdin  ChannelHandle
	Stdout ChannelHandle
}

// SystemRuntime owns the channel table and brokers every actor's I/O.
type SystemRuntime struct {
	dag   *dag.Dag
	pool  *pipepool.PipePool
	gen   *idgen.IdGen
	log   *slog.Logger

	mu          sync.Mutex
	channels    map[ChannelHandle]*channelEntry
	nextChannel int64
}

// New builds a runtime over d, backed by kv for pipe storage.
func New(d *dag.Dag, kv iokv.KVStore, gen *idgen.IdGen) *SystemRuntime {
	return &SystemRuntime{
		dag:      d,
		pool:     pipepool.New(kv, notify.New()),
		gen:      gen,
		log:      slog.Default(),
		channels: make(map[ChannelHandle]*channelEntry),
	}
}

// SetLogger overrides the runtime's logger.
func (sr *SystemRuntime) SetLogger(l *slog.Logger) {
	sr.log = l
}

// PipePool returns the pipe pool backing this runtime, e.g. for
// Environment to create output pipes before any actor starts.
func (sr *SystemRuntime) PipePool() *pipepool.PipePool {
	return sr.pool
}

func (sr *SystemRuntime) allocChannel() ChannelHandle {
	h := ChannelHandle(sr.nextChannel)
	sr.nextChannel++
	return h
}

// SetupStdHandles pre-opens stdin (a MergeReader over node's resolved
// dependencies, always used even for zero or one dependency) and
// stdout (node's output pipe, created if it doesn't exist yet).
func (sr *SystemRuntime) SetupStdHandles(ctx context.Context, nodeHandle idgen.Handle) StdHandles {
	sr.log.Debug("setting up std handles", "actor", nodeHandle)

	mr := mergereader.New(sr.dag, nodeHandle, sr.pool, sr.gen)

	sr.mu.Lock()
	stdin := sr.allocChannel()
	sr.channels[stdin] = &channelEntry{kind: readerChannel, reader: mr}
	sr.mu.Unlock()
	sr.log.Debug("stdin configured with merge reader", "actor", nodeHandle, "channel", stdin)

	if !sr.pool.HasPipe(nodeHandle) {
		name := fmt.Sprintf("pipes/actor-%d", nodeHandle.ID())
		ph := sr.pool.CreateOutputPipe(ctx, nodeHandle, name, sr.gen)
		sr.log.Debug("created output pipe", "actor", nodeHandle, "pipe", ph)
	}

	sr.mu.Lock()
	stdout := sr.allocChannel()
	sr.channels[stdout] = &channelEntry{kind: writerChannel, nodeHandle: nodeHandle}
	sr.mu.Unlock()
	sr.log.Debug("stdout configured", "actor", nodeHandle, "channel", stdout)

	return StdHandles{Stdin: stdin, Stdout: stdout}
}

// OpenRead is currently a placeholder: dependency-driven stdin wiring
// happens through SetupStdHandles, and nothing else in this runtime
// opens an extra read stream for a node. It still allocates a real
// channel handle so callers get a consistent, if unusable, handle
// rather than an error.
func (sr *SystemRuntime) OpenRead(_ context.Context, nodeHandle idgen.Handle) ChannelHandle {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	h := sr.allocChannel()
	sr.log.Warn("OpenRead: no input configured, returning unusable handle", "node", nodeHandle, "channel", h)
	return h
}

// OpenWrite creates (if needed) node's output pipe and returns a
// fresh channel handle writing to it.
func (sr *SystemRuntime) OpenWrite(ctx context.Context, nodeHandle idgen.Handle) ChannelHandle {
	sr.log.Debug("processing OpenWrite", "node", nodeHandle)
	if !sr.pool.HasPipe(nodeHandle) {
		name := fmt.Sprintf("pipes/actor-%d", nodeHandle.ID())
		sr.pool.CreateOutputPipe(ctx, nodeHandle, name, sr.gen)
		sr.log.Debug("created pipe", "node", nodeHandle)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	h := sr.allocChannel()
	sr.channels[h] = &channelEntry{kind: writerChannel, nodeHandle: nodeHandle}
	return h
}

// Read fills buf from the reader at handle (POSIX style: >0 bytes
// read, 0 EOF or unknown/busy channel, -1 error). Blocks the calling
// goroutine until data, EOF, or an error is available — concurrent
// Read calls against other channels are unaffected, since this takes
// the reader slot out of the table for the duration.
func (sr *SystemRuntime) Read(handle ChannelHandle, buf []byte) int {
	sr.mu.Lock()
	entry, ok := sr.channels[handle]
	if !ok || entry.kind != readerChannel || entry.reader == nil {
		sr.mu.Unlock()
		sr.log.Warn("Read: channel not found, not a reader, or busy", "channel", handle)
		return 0
	}
	reader := entry.reader
	entry.reader = nil
	sr.mu.Unlock()

	n := reader.Read(buf)
	sr.log.Debug("read completed", "channel", handle, "bytes", n)

	sr.mu.Lock()
	if entry, ok := sr.channels[handle]; ok {
		entry.reader = reader
	}
	sr.mu.Unlock()

	return n
}

// Write sends data to the writer at handle, returning the pipe's
// write result directly (>0 bytes written, 0 empty write, -1 error).
func (sr *SystemRuntime) Write(handle ChannelHandle, data []byte) int {
	sr.mu.Lock()
	entry, ok := sr.channels[handle]
	sr.mu.Unlock()

	if !ok || entry.kind != writerChannel {
		sr.log.Warn("Write: channel not found or not a writer", "channel", handle)
		return -1
	}

	w := sr.pool.GetWriter(entry.nodeHandle)
	n := w.Write(data)
	sr.log.Debug("pipe write returned", "channel", handle, "bytes", n)
	return n
}

// Close releases handle. Closing a writer also closes its pipe and
// flushes the backing buffer; closing a reader just drops the table
// entry. Returns 0 on success, -1 if the channel was unknown.
func (sr *SystemRuntime) Close(ctx context.Context, handle ChannelHandle) int {
	sr.mu.Lock()
	entry, ok := sr.channels[handle]
	if ok {
		delete(sr.channels, handle)
	}
	sr.mu.Unlock()

	if !ok {
		sr.log.Warn("Close: channel not found", "channel", handle)
		return -1
	}

	if entry.kind == readerChannel {
		sr.log.Debug("closed reader", "channel", handle)
		return 0
	}

	sr.pool.GetWriter(entry.nodeHandle).Close()
	sr.log.Debug("closed writer", "channel", handle)

	name := fmt.Sprintf("pipes/actor-%d", entry.nodeHandle.ID())
	if err := sr.pool.FlushBuffer(ctx, entry.nodeHandle, name); err != nil {
		sr.log.Warn("failed to flush buffer", "channel", handle, "error", err)
		return -1
	}
	return 0
}

// FdTable maps POSIX-style fd numbers to global ChannelHandles for
// one actor. Fds are allocated densely starting at 0.
type FdTable struct {
	table map[int]ChannelHandle
	next  int
}

// NewFdTable returns an empty table.
func NewFdTable() *FdTable {
	return &FdTable{table: make(map[int]ChannelHandle)}
}

// Insert allocates the next fd and maps it to handle.
func (t *FdTable) Insert(handle ChannelHandle) int {
	fd := t.next
	t.next++
	t.table[fd] = handle
	return fd
}

// Get returns the ChannelHandle for fd, if open.
func (t *FdTable) Get(fd int) (ChannelHandle, bool) {
	h, ok := t.table[fd]
	return h, ok
}

// Remove drops fd's mapping, returning it if it existed.
func (t *FdTable) Remove(fd int) (ChannelHandle, bool) {
	h, ok := t.table[fd]
	delete(t.table, fd)
	return h, ok
}

// Keys returns every currently open fd, in descending order — the
// order an actor's fd table must be closed in at exit, so stdout (fd
// 1) is closed, and flushed, after any higher fd that might still be
// writing into a pipe stdout depends on.
func (t *FdTable) Keys() []int {
	keys := make([]int, 0, len(t.table))
	for fd := range t.table {
		keys = append(keys, fd)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] < keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
