package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/l10n"
	"github.com/sskaje/clashctl/internal/service"
)

// newManager is replaced in tests.
var newManager = func(cfg conf.Config) *service.Manager {
	return service.New(cfg.InstanceName)
}

func stopAction(c *cli.Context) error {
	cfg := conf.Configuration
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}
	m := newManager(cfg)

	stop := startProgress(l10n.T("Stopping %s...", m.Unit))
	err := m.Stop(c.Context)
	stop()
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(l10n.T("Stopped %s", m.Unit))
	return nil
}

func restartAction(c *cli.Context) error {
	cfg := conf.Configuration
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}
	m := newManager(cfg)

	stop := startProgress(l10n.T("Restarting %s...", m.Unit))
	err := m.Restart(c.Context)
	stop()
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(l10n.T("Restarted %s", m.Unit))
	return nil
}

func statusAction(c *cli.Context) error {
	cfg := conf.Configuration
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}

	status, err := newManager(cfg).Status(c.Context)
	switch {
	case errors.Is(err, service.ErrUnitNotFound):
		fmt.Println(l10n.T("Unit %s is not installed", service.UnitName(cfg.InstanceName)))
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
	default:
		fmt.Printf("%s: %s (%s)\n", status.Name, status.ActiveState, status.SubState)
	}

	if addr, version, err := controllerVersion(c.Context, cfg); err != nil {
		fmt.Println(l10n.T("Controller unavailable: %v", err))
	} else {
		fmt.Println(l10n.T("Controller %s, version %s", addr, version))
	}

	out, err := newRuntime(cfg).PS(c.Context)
	fmt.Print(out)
	if err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func purgeCacheAction(c *cli.Context) error {
	cfg := conf.Configuration
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err, 1)
	}
	unlock, err := prepare(cfg)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer unlock()

	if err := os.Remove(cfg.CachePath()); err != nil && !os.IsNotExist(err) {
		return cli.Exit(l10n.T("Cannot remove %s: %v", cfg.CachePath(), err), 1)
	}
	fmt.Println(l10n.T("Removed %s", cfg.CachePath()))
	return restartAction(c)
}
