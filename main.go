package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/JoeyJohnson82/ScCrawler/cmd"
	"github.com/JoeyJohnson82/ScCrawler/internal/observability"
)

func main() {
	// Cancel the root context on SIGINT/SIGTERM so commands unwind cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}
