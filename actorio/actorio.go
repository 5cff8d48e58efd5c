// Package actorio is the actor-facing proxy to sysruntime: a pure
// POSIX-style surface (open/aread/awrite/aclose/get_errno) backed by
// a per-actor fd table, so actor code never has to know about
// ChannelHandles, the DAG, or the pipe pool directly.
package actorio

import (
	"context"
	"log/slog"

	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/sysruntime"
)

// ActorIO is a single actor's view of the runtime: stdin/stdout are
// pre-opened as fd 0/1 by Setup, and further fds may be allocated via
// OpenRead/OpenWrite.
type ActorIO struct {
	nodeHandle idgen.Handle
	runtime    *sysruntime.SystemRuntime
	fds        *sysruntime.FdTable
	errno      int
	log        *slog.Logger
}

// New returns a proxy for nodeHandle's I/O, routed through runtime.
func New(nodeHandle idgen.Handle, runtime *sysruntime.SystemRuntime) *ActorIO {
	return &ActorIO{
		nodeHandle: nodeHandle,
		runtime:    runtime,
		fds:        sysruntime.NewFdTable(),
		log:        slog.Default(),
	}
}

// Setup pre-opens stdin and stdout, always assigning them fd 0 and fd
// 1 respectively.
func (a *ActorIO) Setup(ctx context.Context) {
	a.log.Debug("requesting std handles setup", "actor", a.nodeHandle)
	std := a.runtime.SetupStdHandles(ctx, a.nodeHandle)

	stdinFd := a.fds.Insert(std.Stdin)
	if stdinFd != 0 {
		panic("actorio: stdin should be fd 0")
	}
	stdoutFd := a.fds.Insert(std.Stdout)
	if stdoutFd != 1 {
		panic("actorio: stdout should be fd 1")
	}
	a.log.Debug("std handles ready", "actor", a.nodeHandle)
}

// CloseAll closes every fd still open, highest first, so stdout (fd
// 1, which flushes on close) goes after anything that might still
// write to a higher fd depending on it, and stdin (fd 0) goes last.
func (a *ActorIO) CloseAll(ctx context.Context) {
	fds := a.fds.Keys()
	for _, fd := range fds {
		a.AClose(ctx, fd)
	}
}

// GetErrno returns the actor's last error code. The reference runtime
// never sets one; a real actor implementation would surface the last
// I/O error from AClose/AWrite/ARead here.
func (a *ActorIO) GetErrno() int {
	return a.errno
}

// OpenRead allocates a new read fd for name. name is currently
// unused, matching sysruntime.OpenRead's placeholder behavior.
func (a *ActorIO) OpenRead(ctx context.Context, name string) int {
	ch := a.runtime.OpenRead(ctx, a.nodeHandle)
	fd := a.fds.Insert(ch)
	a.log.Debug("open_read done", "actor", a.nodeHandle, "fd", fd)
	return fd
}

// OpenWrite allocates a new write fd for name.
func (a *ActorIO) OpenWrite(ctx context.Context, name string) int {
	ch := a.runtime.OpenWrite(ctx, a.nodeHandle)
	fd := a.fds.Insert(ch)
	a.log.Debug("open_write done", "actor", a.nodeHandle, "fd", fd)
	return fd
}

// ARead reads into buf from fd (blocking). Returns -1 if fd is unknown.
func (a *ActorIO) ARead(fd int, buf []byte) int {
	ch, ok := a.fds.Get(fd)
	if !ok {
		a.log.Warn("aread: fd not found", "actor", a.nodeHandle, "fd", fd)
		return -1
	}
	n := a.runtime.Read(ch, buf)
	a.log.Debug("aread done", "actor", a.nodeHandle, "fd", fd, "bytes", n)
	return n
}

// AWrite writes buf to fd (blocking). Returns -1 if fd is unknown.
func (a *ActorIO) AWrite(fd int, buf []byte) int {
	ch, ok := a.fds.Get(fd)
	if !ok {
		a.log.Warn("awrite: fd not found", "actor", a.nodeHandle, "fd", fd)
		return -1
	}
	n := a.runtime.Write(ch, buf)
	a.log.Debug("awrite done", "actor", a.nodeHandle, "fd", fd, "result", n)
	return n
}

// AClose closes fd. Returns -1 if fd is unknown.
func (a *ActorIO) AClose(ctx context.Context, fd int) int {
	ch, ok := a.fds.Remove(fd)
	if !ok {
		a.log.Warn("aclose: fd not found", "actor", a.nodeHandle, "fd", fd)
		return -1
	}
	result := a.runtime.Close(ctx, ch)
	a.log.Debug("aclose done", "actor", a.nodeHandle, "fd", fd, "result", result)
	return result
}
