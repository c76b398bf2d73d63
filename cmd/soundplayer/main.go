package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/ttsyukkuri/soundplayer/internal/cli"
)

func main() {
	// Ctrl+C stops waiting for playback
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	c := cli.NewCLI()
	exitCode := c.RunContext(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(exitCode)
}
