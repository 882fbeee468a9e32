package main

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/controller"
	"github.com/sskaje/clashctl/internal/dashboard"
	"github.com/sskaje/clashctl/internal/l10n"
	"github.com/sskaje/clashctl/internal/pipeline"
)

func updateUIAction(c *cli.Context) error {
	cfg := conf.Configuration
	unlock, err := prepare(cfg)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer unlock()

	installer := &dashboard.Installer{
		Dir: cfg.UIDir(),
		Progress: func(repo string) func() {
			return startProgress(l10n.T("Downloading %s...", repo))
		},
	}
	if err := installer.Install(c.Context, cfg.Dashboards); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(l10n.TN("Installed %d dashboard", "Installed %d dashboards", uint32(len(cfg.Dashboards)), len(cfg.Dashboards)))
	return nil
}

func showUIAction(c *cli.Context) error {
	cfg := conf.Configuration
	urls, err := dashboardURLs(cfg)
	if err != nil {
		return exitWithError(l10n.T("Cannot show dashboards"), err)
	}
	for _, u := range urls {
		fmt.Println(u)
	}
	return nil
}

// dashboardURLs returns the dashboard links of the generated configuration.
func dashboardURLs(cfg conf.Config) ([]string, error) {
	doc, err := pipeline.Load(cfg.ConfigPath())
	if err != nil {
		return nil, err
	}
	client, err := controller.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := doc.Get(controller.KeyExternalUI); !ok {
		slog.Warn("external-ui is not set, dashboards are not served", "path", cfg.ConfigPath())
	}

	names := make([]string, 0, len(cfg.Dashboards))
	for _, repo := range cfg.Dashboards {
		names = append(names, dashboard.Name(repo))
	}
	return client.DashboardURLs(names), nil
}
