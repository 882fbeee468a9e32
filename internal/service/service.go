// Package service controls the systemd unit that supervises the router
// container.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	systemd "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"
)

// ErrUnitNotFound is returned when systemd does not know the unit.
var ErrUnitNotFound = errors.New("unit not found")

const noSuchUnit = "org.freedesktop.systemd1.NoSuchUnit"

// UnitName returns the unit VyOS creates for a container instance.
func UnitName(instance string) string {
	return fmt.Sprintf("vyos-container-%s.service", instance)
}

// Conn is the subset of the systemd D-Bus API the manager uses.
type Conn interface {
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]systemd.UnitStatus, error)
	Close()
}

// Status is the state of a unit.
type Status struct {
	Name        string
	Description string
	LoadState   string
	ActiveState string
	SubState    string
}

// Manager starts and stops a unit.
type Manager struct {
	Unit string
	// Connect opens the D-Bus connection. Defaults to the system bus.
	Connect func(ctx context.Context) (Conn, error)
}

// New returns a manager for the unit of instance.
func New(instance string) *Manager {
	return &Manager{Unit: UnitName(instance)}
}

func (m *Manager) connect(ctx context.Context) (Conn, error) {
	if m.Connect != nil {
		return m.Connect(ctx)
	}
	conn, err := systemd.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to systemd: %w", err)
	}
	return conn, nil
}

// Restart restarts the unit and waits for the job to finish.
func (m *Manager) Restart(ctx context.Context) error {
	return m.job(ctx, "restart", func(conn Conn, ch chan<- string) (int, error) {
		return conn.RestartUnitContext(ctx, m.Unit, "replace", ch)
	})
}

// Stop stops the unit and waits for the job to finish.
func (m *Manager) Stop(ctx context.Context) error {
	return m.job(ctx, "stop", func(conn Conn, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, m.Unit, "replace", ch)
	})
}

func (m *Manager) job(ctx context.Context, verb string, start func(Conn, chan<- string) (int, error)) error {
	conn, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	done := make(chan string, 1)
	if _, err := start(conn, done); err != nil {
		return m.wrap(verb, err)
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("cannot %s %s: job %s", verb, m.Unit, result)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	slog.Debug("unit job finished", "unit", m.Unit, "job", verb)
	return nil
}

// Status returns the current state of the unit.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	conn, err := m.connect(ctx)
	if err != nil {
		return Status{}, err
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{m.Unit})
	if err != nil {
		return Status{}, m.wrap("query", err)
	}
	if len(units) == 0 || units[0].LoadState == "not-found" {
		return Status{}, fmt.Errorf("%w: %s", ErrUnitNotFound, m.Unit)
	}
	u := units[0]
	return Status{
		Name:        u.Name,
		Description: u.Description,
		LoadState:   u.LoadState,
		ActiveState: u.ActiveState,
		SubState:    u.SubState,
	}, nil
}

func (m *Manager) wrap(verb string, err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == noSuchUnit {
		return fmt.Errorf("cannot %s %s: %w", verb, m.Unit, ErrUnitNotFound)
	}
	return fmt.Errorf("cannot %s %s: %w", verb, m.Unit, err)
}
