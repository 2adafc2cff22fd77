// Package main starts the examd service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	examdcmd "github.com/louisbranch/examroom/internal/cmd/examd"
)

func main() {
	cfg, err := examdcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[EXAMD] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := examdcmd.Run(ctx, cfg); err != nil && ctx.Err() == nil {
		log.Fatalf("failed to run: %v", err)
	}
}
