package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// contextWithSignals returns a context cancelled on SIGINT/SIGTERM, so a
// long-running scan or watch loop unwinds cleanly on Ctrl+C, plus the stop
// function the caller must invoke once the command finishes.
func contextWithSignals() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
