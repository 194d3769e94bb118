// Command autodev is the command line client for the Auto-Dev Department
// backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/randalmurphal/autodev/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
