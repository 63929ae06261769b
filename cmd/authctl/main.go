package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/stocktake/internal/auth/app"
	"github.com/aussiebroadwan/stocktake/internal/authctl"
)

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadAdminConfig(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "authctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &authctl.CLI{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if err := cli.Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, authctl.ErrUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "authctl: %v\n", err)
		os.Exit(1)
	}
}
