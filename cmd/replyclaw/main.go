// ReplyClaw - OneBot reply-suggestion gateway
// License: MIT
//
// Copyright (c) 2026 ReplyClaw contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal"
	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal/gateway"
	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal/onboard"
	"github.com/tinyland-inc/replyclaw/cmd/replyclaw/internal/version"
)

func NewReplyclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s replyclaw - Chat reply suggestion gateway v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "replyclaw",
		Short:   short,
		Example: "replyclaw gateway",
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewReplyclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
