package iokv

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// OpenMode selects the semantics of KVStore.Open.
type OpenMode int

const (
	// Read returns the existing buffer at path, failing if absent.
	Read OpenMode = iota
	// Write creates a new empty buffer, replacing any existing one.
	Write
	// Append returns the existing buffer at path, or creates one.
	Append
)

// ErrNotFound is returned by Open(Read) on an unknown path.
var ErrNotFound = errors.New("iokv: path not found")

// KVStore is the pluggable persistence layer consumed by the Pipe Pool.
// Paths are opaque strings to the core; the runtime's only convention
// is the `pipes/actor-{id}` path used for per-actor output buffers.
//
// The concrete backend (SQL, object storage, ...) is explicitly out of
// scope for this module; only this contract, plus the in-memory
// reference implementation below, are specified.
type KVStore interface {
	Open(ctx context.Context, path string, mode OpenMode) (*Buffer, error)
	Listdir(ctx context.Context, prefix string) ([]string, error)
	Destroy(ctx context.Context) error
	Flush(ctx context.Context, path string) error
}

// MemKV is an in-memory KVStore, the reference backend this module
// ships (mirroring original_source's MemKV). Suitable for tests and
// single-process use; Flush is a no-op.
type MemKV struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
}

// NewMemKV returns an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{buffers: make(map[string]*Buffer)}
}

// Open implements KVStore.
func (kv *MemKV) Open(_ context.Context, path string, mode OpenMode) (*Buffer, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	switch mode {
	case Read:
		buf, ok := kv.buffers[path]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "path %q", path)
		}
		return buf, nil
	case Write:
		buf := NewBuffer()
		kv.buffers[path] = buf
		return buf, nil
	case Append:
		if buf, ok := kv.buffers[path]; ok {
			return buf, nil
		}
		buf := NewBuffer()
		kv.buffers[path] = buf
		return buf, nil
	default:
		return nil, errors.Errorf("iokv: unknown open mode %d", mode)
	}
}

// Listdir implements KVStore. A trailing '/' is appended to prefix if
// missing, and the result is returned sorted.
func (kv *MemKV) Listdir(_ context.Context, prefix string) ([]string, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	var paths []string
	for path := range kv.buffers {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Destroy implements KVStore, clearing all buffers.
func (kv *MemKV) Destroy(_ context.Context) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.buffers = make(map[string]*Buffer)
	return nil
}

// Flush implements KVStore. No-op for the in-memory backend.
func (kv *MemKV) Flush(_ context.Context, _ string) error {
	return nil
}
