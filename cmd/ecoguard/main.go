// Command ecoguard screens eco-action photo submissions for duplicates and
// farming, and runs the periodic abuse monitor over the submission history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ecoguard:", err)
		os.Exit(1)
	}
}
