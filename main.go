// Salvo - a two-player naval combat match server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"salvo/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "salvo: %v\n", err)
		os.Exit(1)
	}
}
