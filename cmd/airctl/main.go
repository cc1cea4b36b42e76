// Package main provides airctl, a command line client for the airmonitor API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/airmonitor/airmonitor/internal/cli"
)

// Version is set at compile time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.New(Version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "airctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
