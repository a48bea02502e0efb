// gossipctl enumerates the reachable knowledge states of dynamic
// gossip protocols and reports counts, inclusions, and expected
// execution lengths.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gossipctl: %v\n", err)
		os.Exit(1)
	}
}
