// Package environment is the top-level orchestrator: it builds the
// DAG (value nodes, actor nodes, aliases), registers actor
// implementations by name, and runs the scheduled subset needed to
// build a target node, joining every spawned actor at the end.
package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/olpa/ailets-sub000/actorio"
	"github.com/olpa/ailets-sub000/dag"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/sysruntime"
)

// ActorFn is an actor implementation: it reads its dependencies'
// concatenated output from stdin and writes its own output to stdout.
type ActorFn func(stdin io.Reader, stdout io.WriteCloser) error

// ActorRegistry maps an idname (the string a node was created with) to
// its implementation.
type ActorRegistry struct {
	actors map[string]ActorFn
}

// NewActorRegistry returns an empty registry.
func NewActorRegistry() *ActorRegistry {
	return &ActorRegistry{actors: make(map[string]ActorFn)}
}

// Register associates name with fn, overwriting any previous entry.
func (r *ActorRegistry) Register(name string, fn ActorFn) {
	r.actors[name] = fn
}

// Get looks up name's implementation. Panics if unregistered: a
// scheduled node with no implementation is a wiring bug, not a
// recoverable runtime condition.
func (r *ActorRegistry) Get(name string) ActorFn {
	fn, ok := r.actors[name]
	if !ok {
		panic(fmt.Sprintf("environment: actor %q not registered", name))
	}
	return fn
}

// valueNodeData holds the constant bytes a value node outputs.
type valueNodeData struct {
	data []byte
}

// Environment owns the DAG, the actor registry, and the value-node
// side table, and knows how to run a target node to completion.
type Environment struct {
	Dag      *dag.Dag
	IdGen    *idgen.IdGen
	Registry *ActorRegistry

	kv         iokv.KVStore
	valueNodes map[idgen.Handle]valueNodeData
	log        *slog.Logger
}

// New returns an empty environment backed by kv.
func New(kv iokv.KVStore) *Environment {
	gen := idgen.New()
	return &Environment{
		Dag:        dag.New(gen),
		IdGen:      gen,
		Registry:   NewActorRegistry(),
		kv:         kv,
		valueNodes: make(map[idgen.Handle]valueNodeData),
		log:        slog.Default(),
	}
}

// SetLogger overrides the environment's logger.
func (e *Environment) SetLogger(l *slog.Logger) {
	e.log = l
}

// AddValueNode adds a node that outputs the fixed bytes in data,
// independent of any dependency.
func (e *Environment) AddValueNode(data []byte, explain string) idgen.Handle {
	h := e.Dag.AddNodeExplain("value", dag.Concrete, explain)
	e.valueNodes[h] = valueNodeData{data: data}
	return h
}

// AddNode adds an actor node named idname depending on deps.
func (e *Environment) AddNode(idname string, deps []idgen.Handle, explain string) idgen.Handle {
	h := e.Dag.AddNodeExplain(idname, dag.Concrete, explain)
	for _, dep := range deps {
		e.Dag.AddDependency(h, dep)
	}
	return h
}

// AddAlias adds a node that transparently redirects to target.
func (e *Environment) AddAlias(aliasName string, target idgen.Handle) idgen.Handle {
	h := e.Dag.AddNode(aliasName, dag.Alias)
	e.Dag.AddDependency(h, target)
	return h
}

// IsValueNode reports whether handle was created with AddValueNode.
func (e *Environment) IsValueNode(handle idgen.Handle) bool {
	_, ok := e.valueNodes[handle]
	return ok
}

func (e *Environment) runValueNode(ctx context.Context, runtime *sysruntime.SystemRuntime, nodeHandle idgen.Handle, idname string, data []byte) {
	e.log.Debug("value node task starting", "node", nodeHandle, "name", idname)
	aio := actorio.New(nodeHandle, runtime)
	aio.Setup(ctx)

	w := aio.Stdout()
	if _, err := w.Write(data); err != nil {
		e.log.Warn("value node error", "node", nodeHandle, "name", idname, "error", err)
	} else {
		e.log.Debug("value node completed", "node", nodeHandle, "name", idname)
	}

	aio.CloseAll(ctx)
	e.log.Debug("value node done", "node", nodeHandle, "name", idname)
}

func (e *Environment) runActorNode(ctx context.Context, runtime *sysruntime.SystemRuntime, nodeHandle idgen.Handle, idname string, fn ActorFn) {
	e.log.Debug("task starting", "node", nodeHandle, "name", idname)
	aio := actorio.New(nodeHandle, runtime)
	aio.Setup(ctx)

	if err := fn(aio.Stdin(), aio.Stdout()); err != nil {
		e.log.Warn("task error", "node", nodeHandle, "name", idname, "error", err)
	} else {
		e.log.Debug("task completed", "node", nodeHandle, "name", idname)
	}

	aio.CloseAll(ctx)
	e.log.Debug("task done", "node", nodeHandle, "name", idname)
}

// Run schedules every node target transitively depends on (target
// included) and executes them concurrently, each in its own
// goroutine, joined through an errgroup. Every scheduled node's output
// pipe is created before any goroutine starts, so dependency
// *completion* is enforced by the pipe/notify layer blocking reads,
// not by goroutine ordering — dependents simply block on stdin until
// their dependencies write and close.
func (e *Environment) Run(ctx context.Context, target idgen.Handle) error {
	runtime := sysruntime.New(e.Dag, e.kv, e.IdGen)

	plan := dag.NewScheduler(e.Dag, target).Plan()
	e.log.Debug("scheduled nodes", "count", len(plan))

	for _, nodeHandle := range plan {
		name := fmt.Sprintf("pipes/actor-%d", nodeHandle.ID())
		runtime.PipePool().CreateOutputPipe(ctx, nodeHandle, name, e.IdGen)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, nodeHandle := range plan {
		nodeHandle := nodeHandle
		node, ok := e.Dag.GetNode(nodeHandle)
		if !ok {
			return fmt.Errorf("environment: scheduled node %s not in dag", nodeHandle)
		}
		idname := node.IdName

		e.Dag.SetState(nodeHandle, dag.Running)
		g.Go(func() error {
			defer e.Dag.SetState(nodeHandle, dag.Terminated)
			if vn, ok := e.valueNodes[nodeHandle]; ok {
				e.runValueNode(ctx, runtime, nodeHandle, idname, vn.data)
			} else {
				fn := e.Registry.Get(idname)
				e.runActorNode(ctx, runtime, nodeHandle, idname, fn)
			}
			return nil
		})
	}

	return g.Wait()
}
