// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server for Claude Desktop integration
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/harperreed/dayplan/handlers"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App, version string) error {
	app.Logger.Info("starting dayplan MCP server", zap.String("user_id", app.Config.UserID))

	userID := app.Config.UserID

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dayplan",
		Version: version,
	}, nil)

	handlers.NewCalendarHandlers(app.Service, app.Events, app.Notifications, userID).Register(server)
	handlers.NewResourceHandlers(app.Service, app.Events, app.Notifications, userID).Register(server)
	handlers.NewPromptHandlers(app.Service, app.Notifications, userID).Register(server)

	// Run server on stdio transport
	ctx := context.Background()
	return server.Run(ctx, &mcp.StdioTransport{})
}
