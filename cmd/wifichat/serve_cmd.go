package main

import (
	"context"
	"fmt"

	"github.com/codefionn/wifichat/internal/node"
	"github.com/spf13/cobra"
)

// serveCmd runs this device as group owner.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as group owner",
	Long:  "Listen for group members, relay their chat lines and share the peer roster on request.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(func(ctx context.Context, n *node.Node) error {
			if err := n.Connection().StartServer(ctx); err != nil {
				return fmt.Errorf("failed to start group owner: %w", err)
			}
			return nil
		})
	},
}

// joinCmd connects this device to a group owner.
var joinCmd = &cobra.Command{
	Use:   "join <host>",
	Short: "Join a group owner",
	Long:  "Connect to the group owner at host. A host without a port uses --port.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]
		return runNode(func(ctx context.Context, n *node.Node) error {
			if err := n.Connection().StartClient(ctx, host); err != nil {
				return fmt.Errorf("failed to join %s: %w", host, err)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(joinCmd)
}
