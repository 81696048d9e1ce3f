// Command mapdna renders map documents, replays rendered maps through the
// interpreter and manages hosted interpreter bundles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mapdna/internal/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCmd(commands.App{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
