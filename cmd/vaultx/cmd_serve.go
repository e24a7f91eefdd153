package main

import (
	"github.com/spf13/cobra"
)

// serveCmd runs the HTTP API in the foreground.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := openContainer(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Serve(ctx)
	},
}
