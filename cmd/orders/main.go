// Package main starts the orders service and handles termination.
//
// The process hosts the write model, the read-model projector, and the
// realtime update surface in a single composition.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	orderscmd "github.com/commerceloop/orderflow/internal/cmd/orders"
)

func main() {
	cfg, err := orderscmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ORDERS] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orderscmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
