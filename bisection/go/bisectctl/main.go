// bisectctl computes bisection midpoints and manages the bisection job
// queues from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.skia.org/bisection/bisection/go/bisectctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cli.App(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
