package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := Command().ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}
