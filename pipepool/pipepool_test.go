package pipepool

import (
	"context"
	"testing"

	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
	"github.com/olpa/ailets-sub000/notify"
)

func TestCreateOutputPipeThenGetWriter(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	actor := gen.Next()

	pool.CreateOutputPipe(context.Background(), actor, "pipes/actor-1", gen)
	w := pool.GetWriter(actor)
	if n := w.Write([]byte("hi")); n != 2 {
		t.Fatalf("Write returned %d, want 2", n)
	}
}

func TestCreateOutputPipeTwicePanics(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	actor := gen.Next()
	pool.CreateOutputPipe(context.Background(), actor, "pipes/actor-1", gen)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double create")
		}
	}()
	pool.CreateOutputPipe(context.Background(), actor, "pipes/actor-1", gen)
}

func TestGetWriterMissingPanics(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing pipe")
		}
	}()
	pool.GetWriter(gen.Next())
}

func TestOpenReaderMultipleReadersIndependent(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	actor := gen.Next()
	pool.CreateOutputPipe(context.Background(), actor, "pipes/actor-1", gen)
	pool.GetWriter(actor).Write([]byte("data"))

	r1 := pool.OpenReader(actor, gen)
	r2 := pool.OpenReader(actor, gen)

	buf := make([]byte, 4)
	if n := r1.Read(buf); n != 4 {
		t.Fatalf("r1 read %d, want 4", n)
	}
	if n := r2.Read(buf); n != 4 {
		t.Fatalf("r2 read %d, want 4", n)
	}
}

func TestCreateMergeWriterIsStandalone(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	w := pool.CreateMergeWriter(context.Background(), "pipes/merge-1", gen)
	if n := w.Write([]byte("m")); n != 1 {
		t.Fatalf("Write returned %d, want 1", n)
	}
}

func TestFlushBufferMissingPanics(t *testing.T) {
	gen := idgen.New()
	pool := New(iokv.NewMemKV(), notify.New())
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for missing pipe")
		}
	}()
	pool.FlushBuffer(context.Background(), gen.Next(), "pipes/missing")
}
