package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal"
	"github.com/tinyland-inc/replyclaw/pkg/gateway"
	"github.com/tinyland-inc/replyclaw/pkg/logger"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.LLM.APIBase == "" {
		fmt.Println("⚠ Warning: llm.api_base is not set; suggestion endpoints will fail")
	}

	srv, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("error creating gateway: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("✓ Gateway started on %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("  OneBot upstream: ws://%s:%d/onebot/event\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("gateway error: %w", err)
	}
	fmt.Println("✓ Gateway stopped")
	return nil
}
