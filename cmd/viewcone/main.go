package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/viewcone/internal/config"
	"github.com/zeusync/viewcone/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults to $"+config.EnvConfigPath+")")
	listen := flag.String("listen", "", "override server.listen_addr")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := injector.InitializeServer(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing server:", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Server error:", err)
		cleanup()
		os.Exit(1)
	}
}
