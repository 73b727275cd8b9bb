// Package main implements the flexrc-stress CLI tool.
//
// flexrc-stress drives flexrc records through concurrent clone, drop and
// conversion workloads and fails if a payload is ever released early,
// twice, or not at all.
//
// Usage:
//
//	flexrc-stress clone-drop --scheme hybrid --goroutines 16
//	flexrc-stress claim-race --scheme tracked --iterations 100000
//	flexrc-stress all --metrics-addr :9102 --hold 1m
//
// Every flag can also be set in a config file (--config) or through the
// environment with the FLEXRC_ prefix, e.g. FLEXRC_GOROUTINES=32.
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
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
