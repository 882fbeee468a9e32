// Package container runs the router image through a container CLI such as
// podman or docker.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/google/uuid"
)

// Markers the router prints when a configuration test passes.
const (
	markerInitialized = "Initial configuration complete"
	markerSuccess     = "test is successful"
)

// ErrVerification is returned when the router rejects a configuration.
var ErrVerification = errors.New("configuration verification failed")

// Executor runs a command and returns its combined output.
type Executor func(ctx context.Context, name string, args ...string) ([]byte, error)

// Exec runs commands with os/exec.
func Exec(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Runtime describes how to invoke the router image.
type Runtime struct {
	// Command is the container CLI, "podman" or "docker".
	Command string
	// Image is the router image reference.
	Image string
	// Exec runs commands. Defaults to Exec.
	Exec Executor
}

// RunArgs returns the argument list of a one-shot "run --rm" invocation.
func (r *Runtime) RunArgs(extra []string, args ...string) []string {
	cmd := []string{r.Command, "run", "--rm"}
	cmd = append(cmd, extra...)
	cmd = append(cmd, r.Image)
	return append(cmd, args...)
}

// OpArgs returns the argument list of a plain container CLI command.
func (r *Runtime) OpArgs(command string, extra ...string) []string {
	return append([]string{r.Command, command}, extra...)
}

func (r *Runtime) run(ctx context.Context, argv []string) ([]byte, error) {
	run := r.Exec
	if run == nil {
		run = Exec
	}
	slog.Debug("running container command", "argv", strings.Join(argv, " "))
	return run(ctx, argv[0], argv[1:]...)
}

// Verify runs the router in test mode against file, a path inside dir. dir
// is mounted at the same location in the container.
func (r *Runtime) Verify(ctx context.Context, dir, file string) error {
	name := "clashctl-verify-" + uuid.NewString()
	argv := r.RunArgs(
		[]string{"--name", name, "-v", dir + ":" + dir, "--network", "host"},
		"-d", dir, "-f", file, "-t",
	)

	out, err := r.run(ctx, argv)
	if err != nil {
		slog.Debug("verification output", "output", string(out))
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}
	if !bytes.Contains(out, []byte(markerInitialized)) || !bytes.Contains(out, []byte(markerSuccess)) {
		slog.Debug("verification output", "output", string(out))
		return fmt.Errorf("%w: %s", ErrVerification, lastLine(out))
	}
	return nil
}

// PS lists the containers known to the container CLI.
func (r *Runtime) PS(ctx context.Context) (string, error) {
	out, err := r.run(ctx, r.OpArgs("ps"))
	if err != nil {
		return string(out), fmt.Errorf("%s ps failed: %w", r.Command, err)
	}
	return string(out), nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
