package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"recipe-scaler/internal/pkg/common"
)

func main() {
	defer common.Sync()

	// 中斷時取消進行中的推論與零售搜尋
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		common.Sync()
		os.Exit(1)
	}
}
