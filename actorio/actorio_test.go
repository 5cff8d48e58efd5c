package actorio

import (
	"context"
	"io"
	"testing"

	"github.com/olpa/ailets-sub000/dag"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/sysruntime"
)

func TestSetupAssignsStdFds(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := sysruntime.New(d, iokv.NewMemKV(), gen)
	node := d.AddNode("actor", dag.Concrete)

	a := New(node, sr)
	a.Setup(context.Background())

	if n := a.AWrite(1, []byte("x")); n != 1 {
		t.Fatalf("AWrite on fd 1 = %d, want 1", n)
	}
	buf := make([]byte, 1)
	// fd 0 has no dependencies, so it's EOF.
	if n := a.ARead(0, buf); n != 0 {
		t.Fatalf("ARead on fd 0 = %d, want 0 (EOF)", n)
	}
}

func TestCloseAllClosesStdout(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := sysruntime.New(d, iokv.NewMemKV(), gen)
	node := d.AddNode("actor", dag.Concrete)

	a := New(node, sr)
	a.Setup(context.Background())
	a.CloseAll(context.Background())

	if n := a.AWrite(1, []byte("x")); n != -1 {
		t.Fatalf("AWrite after CloseAll = %d, want -1 (fd gone)", n)
	}
}

func TestStdoutStdinRoundTripThroughDependency(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := sysruntime.New(d, iokv.NewMemKV(), gen)

	producer := d.AddNode("producer", dag.Concrete)
	consumer := d.AddNode("consumer", dag.Concrete)
	d.AddDependency(consumer, producer)

	pa := New(producer, sr)
	pa.Setup(context.Background())
	w := pa.Stdout()
	if _, err := w.Write([]byte("stream")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	pa.CloseAll(context.Background())

	ca := New(consumer, sr)
	ca.Setup(context.Background())
	got, err := io.ReadAll(ca.Stdin())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "stream" {
		t.Fatalf("got %q, want stream", got)
	}
}

func TestOpenReadReturnsValidFd(t *testing.T) {
	gen := idgen.New()
	d := dag.New(gen)
	sr := sysruntime.New(d, iokv.NewMemKV(), gen)
	node := d.AddNode("actor", dag.Concrete)

	a := New(node, sr)
	fd := a.OpenRead(context.Background(), "extra")
	if fd < 0 {
		t.Fatalf("OpenRead returned invalid fd %d", fd)
	}
}
