// ABOUTME: MCP server subcommand
// ABOUTME: Serves the operator tools over stdio
package cli

import (
	"github.com/callhenk/henk-sub004/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		database, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		logger.Info("starting MCP server", zap.String("dialect", string(database.Dialect())))
		return handlers.NewServer(database, Version).Run(ctx, &mcp.StdioTransport{})
	},
}
