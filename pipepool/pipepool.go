// Package pipepool manages the one-output-pipe-per-actor convention:
// each actor handle that produces output gets exactly one pipe,
// backed by a buffer obtained from the KV store, and any number of
// readers can be minted against it on demand.
package pipepool

import (
	"context"
	"fmt"
	"sync"

	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/notify"
	"github.com/olpa/ailets-sub000/pipe"
)

type entry struct {
	actor idgen.Handle
	pipe  *pipe.Pipe
}

// PipePool is the registry of output pipes, one per actor handle.
type PipePool struct {
	mu    sync.Mutex
	pipes []entry
	queue *notify.Queue
	kv    iokv.KVStore
}

// New returns an empty pool backed by kv and notifying through queue.
func New(kv iokv.KVStore, queue *notify.Queue) *PipePool {
	return &PipePool{queue: queue, kv: kv}
}

// CreateOutputPipe creates a fresh output pipe for actorHandle, backed
// by a newly-opened buffer named `name` in the KV store.
//
// It panics if actorHandle already has an output pipe: that is a
// programming error in the caller (the Environment is expected to
// create each actor's output pipe exactly once, before scheduling it).
func (p *PipePool) CreateOutputPipe(ctx context.Context, actorHandle idgen.Handle, name string, gen *idgen.IdGen) idgen.Handle {
	p.mu.Lock()
	for _, e := range p.pipes {
		if e.actor == actorHandle {
			p.mu.Unlock()
			panic(fmt.Sprintf("pipepool: actor %s already has an output pipe", actorHandle))
		}
	}
	p.mu.Unlock()

	writerHandle := gen.Next()
	buf, err := p.kv.Open(ctx, name, iokv.Write)
	if err != nil {
		panic(fmt.Sprintf("pipepool: failed to create buffer %q: %v", name, err))
	}

	pp := pipe.New(writerHandle, p.queue, name, buf)

	p.mu.Lock()
	p.pipes = append(p.pipes, entry{actor: actorHandle, pipe: pp})
	p.mu.Unlock()

	return writerHandle
}

// HasPipe reports whether actorHandle already has an output pipe.
func (p *PipePool) HasPipe(actorHandle idgen.Handle) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.pipes {
		if e.actor == actorHandle {
			return true
		}
	}
	return false
}

func (p *PipePool) find(actorHandle idgen.Handle) *pipe.Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.pipes {
		if e.actor == actorHandle {
			return e.pipe
		}
	}
	panic(fmt.Sprintf("pipepool: actor %s doesn't have an output pipe", actorHandle))
}

// GetWriter returns the writer side of actorHandle's pipe. Panics if
// no pipe exists.
func (p *PipePool) GetWriter(actorHandle idgen.Handle) *pipe.Writer {
	return p.find(actorHandle).Writer()
}

// OpenReader mints a fresh reader over actorHandle's output pipe.
// Multiple readers may be created for the same pipe; each is
// independent. Panics if no pipe exists for actorHandle.
func (p *PipePool) OpenReader(actorHandle idgen.Handle, gen *idgen.IdGen) *pipe.Reader {
	pp := p.find(actorHandle)
	return pp.GetReader(gen.Next())
}

// CreateMergeWriter creates a standalone Writer backed by KV storage,
// not associated with any actor's output pipe. Used when an actor's
// stdin needs to be materialized as a single concatenated stream
// ahead of time rather than read live from the dependency pipes.
func (p *PipePool) CreateMergeWriter(ctx context.Context, name string, gen *idgen.IdGen) *pipe.Writer {
	writerHandle := gen.Next()
	buf, err := p.kv.Open(ctx, name, iokv.Write)
	if err != nil {
		panic(fmt.Sprintf("pipepool: failed to create merge buffer %q: %v", name, err))
	}
	return pipe.NewWriter(writerHandle, p.queue, name, buf)
}

// FlushBuffer flushes the KV-backed buffer for actorHandle's pipe.
func (p *PipePool) FlushBuffer(ctx context.Context, actorHandle idgen.Handle, name string) error {
	// Touching the buffer ensures the pipe exists before we ask the
	// store to flush it; the store itself is keyed by name, not handle.
	p.find(actorHandle)
	return p.kv.Flush(ctx, name)
}
