package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/chunkcache/internal/command"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config := zap.NewProductionConfig()
	config.Level = command.Level
	config.Encoding = "console"
	logger, err := config.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := command.NewRootCommand().ExecuteContext(ctx); err != nil {
		logger.Sugar().Error(err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
