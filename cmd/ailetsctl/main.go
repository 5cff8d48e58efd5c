// Command ailetsctl is a demonstration driver for the Environment
// surface: it builds a small literal DAG (a value node feeding a
// chain of "cat" actors) and either dumps its shape or runs it
// against an in-memory KV store. It is illustrative only — the core
// package contracts carry no dependency on this binary.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/olpa/ailets-sub000/environment"
	"github.com/olpa/ailets-sub000/idgen"
	"github.com/olpa/ailets-sub000/iokv"
)

func catActor(stdin io.Reader, stdout io.WriteCloser) error {
	_, err := io.Copy(stdout, stdin)
	return errors.Wrap(err, "cat")
}

// buildDemo wires: value("hello, ailets\n") -> cat -> cat(target).
// Two cat stages exercise the scheduler's dependencies-first order
// and the pipe pool's one-pipe-per-actor bookkeeping even in this
// small illustrative graph.
func buildDemo(kv iokv.KVStore) (*environment.Environment, idgen.Handle) {
	e := environment.New(kv)
	e.Registry.Register("cat", catActor)

	greeting := e.AddValueNode([]byte("hello, ailets\n"), "demo greeting")
	stage1 := e.AddNode("cat", []idgen.Handle{greeting}, "first relay")
	stage2 := e.AddNode("cat", []idgen.Handle{stage1}, "second relay")

	return e, stage2
}

func main() {
	app := cli.NewApp()
	app.Name = "ailetsctl"
	app.Usage = "inspect and run the demo actor DAG"
	app.Commands = []cli.Command{
		{
			Name:  "dump",
			Usage: "print the demo DAG's dependency tree",
			Action: func(c *cli.Context) error {
				e, target := buildDemo(iokv.NewMemKV())
				fmt.Print(e.Dag.Dump(target))
				return nil
			},
		},
		{
			Name:  "run",
			Usage: "run the demo DAG and print the target node's output",
			Action: func(c *cli.Context) error {
				runID := uuid.New()
				logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("run_id", runID.String())

				kv := iokv.NewMemKV()
				e, target := buildDemo(kv)
				e.SetLogger(logger)

				ctx := context.Background()
				if err := e.Run(ctx, target); err != nil {
					return errors.Wrap(err, "run")
				}

				buf, err := kv.Open(ctx, fmt.Sprintf("pipes/actor-%d", target.ID()), iokv.Read)
				if err != nil {
					return errors.Wrap(err, "reading target output")
				}
				guard := buf.Lock()
				defer guard.Release()
				_, err = os.Stdout.Write(guard.Bytes())
				return err
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("ailetsctl failed", "error", err)
		os.Exit(1)
	}
}
