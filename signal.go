package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// forceExit ends the process on a repeated interrupt. Replaced in tests.
var forceExit = func() { os.Exit(130) }

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM, so in-flight requests and the watch loop return cleanly. A second
// signal exits immediately. Signal handling ends with parent.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		interrupted := false

		for {
			select {
			case sig := <-sigCh:
				if interrupted {
					logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
					forceExit()

					return
				}

				interrupted = true

				logger.Info("interrupted, canceling requests", slog.String("signal", sig.String()))
				cancel()
			case <-parent.Done():
				cancel()
				return
			}
		}
	}()

	return ctx
}
