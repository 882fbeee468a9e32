package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/l10n"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "clashctl"
	app.Version = Version
	app.Usage = l10n.T("manage a mihomo container on VyOS")
	app.Description = l10n.T("Downloads the subscription, merges the override files in the overwrite directory and reloads the router.")

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   l10n.T("read configuration from `FILE` instead of %s", conf.DefaultSource().Path),
			EnvVars: []string{"CLASHCTL_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   l10n.T("set log `LEVEL` (DEBUG, INFO, WARN, ERROR)"),
			EnvVars: []string{"CLASHCTL_LOG_LEVEL"},
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "stop",
			Usage:  l10n.T("Stop the instance"),
			Action: stopAction,
		},
		{
			Name:   "restart",
			Usage:  l10n.T("Restart the instance"),
			Action: restartAction,
		},
		{
			Name:   "status",
			Usage:  l10n.T("Show instance status"),
			Action: statusAction,
		},
		{
			Name:   "rehash",
			Usage:  l10n.T("Download the subscription, generate the configuration and reload"),
			Action: rehashAction,
		},
		{
			Name:   "reload",
			Usage:  l10n.T("Ask the running instance to reload its configuration"),
			Action: reloadAction,
		},
		{
			Name:    "generate-config",
			Aliases: []string{"generate_config"},
			Usage:   l10n.T("Generate the configuration from the latest subscription"),
			Action:  generateConfigAction,
		},
		{
			Name:    "purge-cache",
			Aliases: []string{"purge_cache"},
			Usage:   l10n.T("Remove cache.db and restart"),
			Action:  purgeCacheAction,
		},
		{
			Name:    "update-ui",
			Aliases: []string{"update_ui"},
			Usage:   l10n.T("Download the dashboards"),
			Action:  updateUIAction,
		},
		{
			Name:    "show-ui",
			Aliases: []string{"show_ui"},
			Usage:   l10n.T("Show dashboard URLs"),
			Action:  showUIAction,
		},
	}
	app.Before = beforeAction

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// beforeAction loads the configuration and sets up logging before any
// command runs.
func beforeAction(c *cli.Context) error {
	if path := c.String("config"); path != "" {
		source := conf.DefaultSource()
		source.Path = path
		source.DropInDir = filepath.Join(filepath.Dir(path), filepath.Base(path)+".d")
		config, err := source.Read()
		if err != nil {
			return cli.Exit(l10n.T("Cannot read configuration: %v", err), 1)
		}
		conf.Configuration = config
	}

	level := conf.Configuration.LogLevel
	if name := c.String("log-level"); name != "" {
		parsed, ok := conf.ParseLevel(name)
		if !ok {
			return cli.Exit(l10n.T("Unknown log level %q", name), 1)
		}
		level = parsed
	}
	setupLogging(level)
	slog.Debug("configuration loaded", "clash-root", conf.Configuration.ClashRoot, "instance", conf.Configuration.InstanceName)
	return nil
}
