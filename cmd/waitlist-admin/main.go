// Command waitlist-admin manages the admin session against a waitlist
// platform API: log in and out, pick the business to administer and inspect
// which screens the session may open.
//
// Settings come from the environment (see package config); -api and -profile
// override WAITLIST_API_URL and WAITLIST_PROFILE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
