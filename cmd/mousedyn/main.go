package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/offlinefirst/mousedynamics/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := cmd.NewRootCommand()
	err := root.Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
