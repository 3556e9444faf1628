// Command indexer builds the search index from the configured document and
// answers queries from the command line without starting the service.
//
//	indexer search --config configs/development.yaml --context 2 the cat
//	indexer stats --file book.txt --unit words
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
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "indexer: %v\n", err)
		os.Exit(1)
	}
}
