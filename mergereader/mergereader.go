// Package mergereader implements the sequential concatenation of a
// node's dependency output streams into one logical stdin stream: it
// reads the first dependency to EOF, then transparently moves to the
// next, until the dependency list (aliases already resolved) is
// exhausted.
package mergereader

import (
	"fmt"

	"github.com/olpa/ailets-sub000/dag"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/pipe"
	"github.com/olpa/ailets-sub000/pipepool"
)

// MergeReader is always used for an actor's stdin, regardless of
// dependency count: zero dependencies reads as immediate EOF, one
// dependency reads as that dependency alone, and N dependencies read
// as each in sequence.
type MergeReader struct {
	currentReader *pipe.Reader
	pending       []idgen.Handle // remaining dependency handles, consumed front to back
	pool          *pipepool.PipePool
	gen           *idgen.IdGen
}

// New builds a MergeReader over node's resolved dependencies.
func New(d *dag.Dag, node idgen.Handle, pool *pipepool.PipePool, gen *idgen.IdGen) *MergeReader {
	return &MergeReader{
		pending: d.ResolveDependencies(node),
		pool:    pool,
		gen:     gen,
	}
}

// createNextReader pops the next dependency and mints a reader for it.
//
// It panics if the dependency's output pipe doesn't exist yet: the
// Environment creates the output pipe of every scheduled node before
// starting any actor, so by the time an actor starts reading stdin
// every dependency's pipe must already be registered. A missing pipe here means the scheduler or
// Environment wiring is broken, not a recoverable runtime condition.
func (m *MergeReader) createNextReader() *pipe.Reader {
	if len(m.pending) == 0 {
		return nil
	}
	depHandle := m.pending[0]
	m.pending = m.pending[1:]

	if !m.pool.HasPipe(depHandle) {
		panic(fmt.Sprintf("mergereader: dependency pipe for %s doesn't exist", depHandle))
	}
	return m.pool.OpenReader(depHandle, m.gen)
}

// Read reads from the merged dependency stream (POSIX style):
//   - positive: bytes read
//   - 0: EOF, all dependencies exhausted
//   - -1: error from the underlying reader
func (m *MergeReader) Read(buf []byte) int {
	for {
		if m.currentReader == nil {
			r := m.createNextReader()
			if r == nil {
				return 0
			}
			m.currentReader = r
		}

		n := m.currentReader.Read(buf)
		switch {
		case n > 0:
			return n
		case n == 0:
			m.currentReader = nil
		default:
			return n
		}
	}
}

// Close closes the currently active underlying reader, if any.
func (m *MergeReader) Close() {
	if m.currentReader != nil {
		m.currentReader.Close()
		m.currentReader = nil
	}
}

// IsClosed reports whether there is no active underlying reader. This
// is a heuristic: it's also true transiently between dependencies, not
// only once every dependency is exhausted.
func (m *MergeReader) IsClosed() bool {
	return m.currentReader == nil
}
