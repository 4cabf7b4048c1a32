package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := execute(context.Background(), newRootCmd()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs cmd under a context canceled when it returns, which ends the
// signal handling installed by the root pre-run.
func execute(parent context.Context, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	return cmd.ExecuteContext(ctx)
}
