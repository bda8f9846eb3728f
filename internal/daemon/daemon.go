// Package daemon detaches the agent into the background and stops it again
// through its control server.
package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/sevlyar/go-daemon"

	"github.com/offlinefirst/scrollzoom/pkg/control"
)

// EnvVar marks a daemon child process.
const EnvVar = "SCROLLZOOM_DAEMON_CHILD"

// Daemonize detaches the process and returns the child process handle.
// If the returned process is nil, this is the child process.
// If the returned process is non-nil, this is the parent process.
// logFile receives the child's output; empty discards it. extraArgs are
// appended to the child's command line, after the parent's own arguments.
func Daemonize(logFile string, extraArgs ...string) (*os.Process, error) {
	args := append(append([]string{}, os.Args...), extraArgs...)
	ctx := &daemon.Context{
		LogFileName: logFile,
		LogFilePerm: 0o640,
		WorkDir:     "/",
		Umask:       0o27,
		Args:        args,
		Env:         append(os.Environ(), fmt.Sprintf("%s=1", EnvVar)),
	}

	child, err := ctx.Reborn()
	if err != nil {
		return nil, fmt.Errorf("failed to daemonize: %w", err)
	}

	return child, nil
}

// IsChild returns true if this is the daemon child process.
func IsChild() bool {
	return os.Getenv(EnvVar) == "1"
}

// Stop asks the agent on addr to shut down and waits for it to go away.
func Stop(ctx context.Context, addr string) error {
	client, err := control.NewClient(addr)
	if err != nil {
		return err
	}
	if err := client.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop agent on %s: %w", addr, err)
	}
	return nil
}
