// Package main runs the hiring pipeline server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hireloop/hireloop/internal/app/runtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hireloop: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := runtime.NewApplication()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		return err
	}
	return app.Shutdown(context.Background())
}
