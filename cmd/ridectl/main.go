package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ridequery/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.App{}
	err := cli.NewRootCommand(app).ExecuteContext(ctx)
	app.Close()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
