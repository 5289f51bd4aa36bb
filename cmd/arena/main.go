package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/heinthant2k4/sports-arena-booking/cmd/arena/commands"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Execute(ctx, Version); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}
