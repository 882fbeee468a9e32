package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/l10n"
)

var errLocked = errors.New("another clashctl is running")

func setupLogging(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// isTerminal reports whether stdout is attached to a terminal.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// startProgress shows a spinner with msg and returns the function that
// removes it. Nothing is drawn when stdout is not a terminal.
func startProgress(msg string) func() {
	if !isTerminal() {
		slog.Info(msg)
		return func() {}
	}
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond)
	s.Suffix = " " + msg
	s.Start()
	return s.Stop
}

// acquireLock takes an exclusive lock on path. The returned function
// releases it.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLocked
		}
		return nil, fmt.Errorf("cannot lock %s: %w", path, err)
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// prepare creates the working directories and locks the instance.
func prepare(cfg conf.Config) (func(), error) {
	for _, dir := range cfg.Directories() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	unlock, err := acquireLock(cfg.LockPath())
	if err != nil {
		if errors.Is(err, errLocked) {
			return nil, errors.New(l10n.T("Another clashctl command is running, try again later"))
		}
		return nil, err
	}
	return unlock, nil
}
