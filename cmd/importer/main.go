// Command importer loads an EDICT2 dictionary file, and optionally the
// Tatoeba sentence corpus, into PostgreSQL or an SQLite file.
// It is intended to be run offline, not as part of a server.
//
// Exit codes: 0 = success, 1 = error.
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

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		stop()
		os.Exit(1)
	}
}
