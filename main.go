// ABOUTME: Entry point for the dayplan CLI and MCP server
// ABOUTME: Routes to Google Calendar sync commands, the web server, or the MCP server
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/dayplan/cli"
)

const version = "0.2.0"

type command func(app *cli.App, args []string) error

var commands = map[string]command{
	"connect":       cli.ConnectCommand,
	"disconnect":    cli.DisconnectCommand,
	"import":        cli.ImportCommand,
	"status":        cli.StatusCommand,
	"events":        cli.EventsCommand,
	"edit":          cli.EditCommand,
	"notifications": cli.NotificationsCommand,
	"daemon":        cli.DaemonCommand,
	"serve":         cli.ServeCommand,
	"tui":           cli.TUICommand,
	"store":         cli.StoreCommand,
	"mcp": func(app *cli.App, _ []string) error {
		return cli.MCPCommand(app, version)
	},
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/dayplan/config.toml)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("dayplan version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	name, commandArgs := args[0], args[1:]

	if name == "config" {
		if err := cli.ConfigCommand(*configPath, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	run, ok := commands[name]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	app, err := cli.NewApp(*configPath)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	err = run(app, commandArgs)
	app.Close()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`dayplan v%s - Google Calendar sync for your local calendar

USAGE:
  dayplan [global flags] <command> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (TOML or YAML)

COMMANDS:
  config init            Write a starter config file
    --force                Overwrite an existing file
  config path            Show which config file is in use

  connect                Authorize Google Calendar access
    --user <id>            User to connect (default from config)
    --no-browser           Print the URL instead of opening a browser

  disconnect             Revoke and remove the Google credential
    --user <id>

  import                 Import Google Calendar events now
    --user <id>
    --json                 Print the result as JSON

  status                 Show the connection and last import
    --user <id>
    --json

  events                 List local events
    --from <date>          Events ending on or after (YYYY-MM-DD)
    --to <date>            Events starting before (YYYY-MM-DD)
    --linked               Only events imported from Google
    --limit <n>            Max results (default: 50)

  edit <event-id>        Retitle a local event (id or printed prefix)
    --title <title>

  notifications          List import notifications
    --unread               Only unread
    --mark-read <id>       Mark one notification read

  daemon                 Import every connected user on a schedule
    --schedule <cron>      Cron schedule (default from config: */15 * * * *)
    --now                  Run once immediately on start

  serve                  Start the HTTP API, OAuth callback, and dashboard
    --addr <host:port>     Listen address (default: 127.0.0.1:8080)

  tui                    Interactive sync panel
  mcp                    Start MCP server (for Claude Desktop integration)

  store status           Show the charm KV store and connected users
  store sync             Sync the KV store with the charm server
  store reset --confirm  Delete all stored credentials and cursors

EXAMPLES:
  # First-time setup
  dayplan config init
  dayplan connect

  # Import now and see what changed
  dayplan import

  # Keep importing in the background
  dayplan daemon

`, version)
}
