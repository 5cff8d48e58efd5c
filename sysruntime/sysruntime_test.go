package sysruntime

import (
	"context"
	"testing"

	"github.com/olpa/ailets-sub000/dag"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
)

func TestSetupStdHandlesNoDependenciesStdinIsEOF(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := New(d, iokv.NewMemKV(), gen)
	node := d.AddNode("solo", dag.Concrete)

	std := sr.SetupStdHandles(context.Background(), node)
	buf := make([]byte, 4)
	if n := sr.Read(std.Stdin, buf); n != 0 {
		t.Fatalf("Read on dependency-less stdin = %d, want 0 (EOF)", n)
	}
}

func TestSetupStdHandlesWritesReachDependent(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := New(d, iokv.NewMemKV(), gen)

	producer := d.AddNode("producer", dag.Concrete)
	consumer := d.AddNode("consumer", dag.Concrete)
	d.AddDependency(consumer, producer)

	prodStd := sr.SetupStdHandles(context.Background(), producer)
	if n := sr.Write(prodStd.Stdout, []byte("payload")); n != 7 {
		t.Fatalf("Write = %d, want 7", n)
	}
	if r := sr.Close(context.Background(), prodStd.Stdout); r != 0 {
		t.Fatalf("Close(stdout) = %d, want 0", r)
	}

	consStd := sr.SetupStdHandles(context.Background(), consumer)
	buf := make([]byte, 16)
	n := sr.Read(consStd.Stdin, buf)
	if n != 7 || string(buf[:7]) != "payload" {
		t.Fatalf("Read = %d %q, want 7 payload", n, buf[:n])
	}
}

func TestCloseUnknownChannelReturnsError(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := New(d, iokv.NewMemKV(), gen)
	if r := sr.Close(context.Background(), ChannelHandle(999)); r != -1 {
		t.Fatalf("Close on unknown channel = %d, want -1", r)
	}
}

func TestWriteUnknownChannelReturnsError(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := New(d, iokv.NewMemKV(), gen)
	if n := sr.Write(ChannelHandle(999), []byte("x")); n != -1 {
		t.Fatalf("Write on unknown channel = %d, want -1", n)
	}
}

func TestFdTableInsertAssignsSequentialFds(t *testing.T) {
	table := NewFdTable()
	fd0 := table.Insert(ChannelHandle(10))
	fd1 := table.Insert(ChannelHandle(20))
	if fd0 != 0 || fd1 != 1 {
		t.Fatalf("got fds %d,%d want 0,1", fd0, fd1)
	}
}

func TestFdTableKeysDescending(t *testing.T) {
	table := NewFdTable()
	table.Insert(ChannelHandle(1))
	table.Insert(ChannelHandle(2))
	table.Insert(ChannelHandle(3))

	keys := table.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] < keys[i] {
			t.Fatalf("expected descending order, got %v", keys)
		}
	}
}

func TestFdTableRemove(t *testing.T) {
	table := NewFdTable()
	fd := table.Insert(ChannelHandle(5))
	h, ok := table.Remove(fd)
	if !ok || h != ChannelHandle(5) {
		t.Fatalf("Remove = %v, %v, want ChannelHandle(5), true", h, ok)
	}
	if _, ok := table.Get(fd); ok {
		t.Fatal("expected fd to be gone after Remove")
	}
}
