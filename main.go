// bgbsniff relays a BGB link cable session and traces every packet.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bgbsniff/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bgbsniff: %v\n", err)
		os.Exit(1)
	}
}
