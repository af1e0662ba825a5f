package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	device "github.com/mpoegel/turnstile/pkg/device"
	engine "github.com/mpoegel/turnstile/pkg/engine"
	journal "github.com/mpoegel/turnstile/pkg/journal"
)

func init() {
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("missing command: [scan, devices, cleanup]")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	go func() {
		<-sig
		slog.Info("stopping")
		cancel()
	}()

	var err error
	switch args[0] {
	case "scan":
		err = engine.Run(ctx, args[1:])
	case "devices":
		err = device.Run(ctx, args[1:])
	case "cleanup":
		err = journal.Run(ctx, args[1:])
	default:
		err = fmt.Errorf("unknown command: %s", args[0])
	}

	if err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
