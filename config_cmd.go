package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/container"
	"github.com/sskaje/clashctl/internal/controller"
	"github.com/sskaje/clashctl/internal/l10n"
	"github.com/sskaje/clashctl/internal/pipeline"
	"github.com/sskaje/clashctl/internal/provider"
	"github.com/sskaje/clashctl/internal/subscription"
	"github.com/sskaje/clashctl/internal/tree"
)

func newRuntime(cfg conf.Config) *container.Runtime {
	return &container.Runtime{Command: cfg.ContainerCommand, Image: cfg.ContainerImage}
}

func newFetcher(cfg conf.Config) *subscription.Fetcher {
	return &subscription.Fetcher{
		URL:         cfg.Subscription,
		DownloadDir: cfg.DownloadDir(),
		LatestName:  conf.LatestConfigName,
		TestDir:     cfg.TestDir,
		Verifier:    newRuntime(cfg),
	}
}

// generateConfig merges base, the providers file and the override
// directory into the instance configuration.
func generateConfig(cfg conf.Config, base string) (*tree.Mapping, error) {
	providers, err := provider.Load(cfg.ProvidersPath())
	if err != nil {
		return nil, err
	}
	p := &pipeline.Pipeline{
		BasePath:    base,
		OverrideDir: cfg.OverrideDir(),
		Providers:   providers,
		OutputPath:  cfg.ConfigPath(),
	}
	return p.Run()
}

// reloadConfig asks the running router to load the generated
// configuration. doc is read from disk when nil.
func reloadConfig(ctx context.Context, cfg conf.Config, doc *tree.Mapping) error {
	if doc == nil {
		var err error
		doc, err = pipeline.Load(cfg.ConfigPath())
		if err != nil {
			return err
		}
	}
	client, err := controller.FromDocument(doc)
	if err != nil {
		return err
	}
	path := cfg.ContainerConfigPath()
	slog.Debug("reloading configuration", "controller", client.BaseURL, "path", path)
	if err := client.Reload(ctx, path); err != nil {
		return fmt.Errorf("cannot reload %s: %w", path, err)
	}
	return nil
}

// controllerVersion returns the controller address and the version of the
// running router.
func controllerVersion(ctx context.Context, cfg conf.Config) (string, string, error) {
	doc, err := pipeline.Load(cfg.ConfigPath())
	if err != nil {
		return "", "", err
	}
	client, err := controller.FromDocument(doc)
	if err != nil {
		return "", "", err
	}
	version, err := client.Version(ctx)
	if err != nil {
		return client.BaseURL, "", err
	}
	return client.BaseURL, version, nil
}

// exitWithError formats err for the user, with a hint for the errors that
// point at a specific file.
func exitWithError(msg string, err error) error {
	var ioErr *pipeline.IOError
	if errors.As(err, &ioErr) && errors.Is(err, os.ErrNotExist) {
		return cli.Exit(l10n.T("%s: %s does not exist", msg, ioErr.Path), 1)
	}
	return cli.Exit(fmt.Sprintf("%s: %v", msg, err), 1)
}

func rehashAction(c *cli.Context) error {
	cfg := conf.Configuration
	unlock, err := prepare(cfg)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer unlock()

	stop := startProgress(l10n.T("Downloading subscription..."))
	base, err := newFetcher(cfg).Fetch(c.Context)
	stop()
	if err != nil {
		return exitWithError(l10n.T("Cannot update subscription"), err)
	}

	doc, err := generateConfig(cfg, base)
	if err != nil {
		return exitWithError(l10n.T("Cannot generate configuration"), err)
	}
	fmt.Println(l10n.T("Configuration written to %s", cfg.ConfigPath()))

	if err := reloadConfig(c.Context, cfg, doc); err != nil {
		return exitWithError(l10n.T("Cannot reload configuration"), err)
	}
	fmt.Println(l10n.T("Configuration reloaded"))
	return nil
}

func generateConfigAction(c *cli.Context) error {
	cfg := conf.Configuration
	unlock, err := prepare(cfg)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer unlock()

	if _, err := generateConfig(cfg, cfg.LatestConfigPath()); err != nil {
		return exitWithError(l10n.T("Cannot generate configuration"), err)
	}
	fmt.Println(l10n.T("Configuration written to %s", cfg.ConfigPath()))
	return nil
}

func reloadAction(c *cli.Context) error {
	cfg := conf.Configuration
	if err := reloadConfig(c.Context, cfg, nil); err != nil {
		return exitWithError(l10n.T("Cannot reload configuration"), err)
	}
	fmt.Println(l10n.T("Configuration reloaded"))
	return nil
}
