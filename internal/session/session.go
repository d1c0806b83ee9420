// Package session triggers game client sessions against discovered servers.
// A triggered session runs on its own; the scanner never interacts with it afterwards.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"
)

// TokenEnv carries the credential token to spawned commands.
const TokenEnv = "MCSCAN_SESSION_TOKEN"

// Request describes one session to open.
type Request struct {
	Host            string
	Token           string
	Port            uint16
	ProtocolVersion int
}

// Spawner opens a session for a request without waiting for it to end.
type Spawner interface {
	Spawn(ctx context.Context, req Request) error
}

// CommandSpawner starts an external client command per request.
// The placeholders {host}, {port}, {token} and {protocol} are expanded in every argument.
type CommandSpawner struct {
	argv []string
	wg   sync.WaitGroup
}

// NewCommand parses command with shell quoting rules.
func NewCommand(command string) (*CommandSpawner, error) {
	argv, err := shlex.Split(strings.TrimSpace(command))
	if err != nil {
		return nil, fmt.Errorf("parse session command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("session command is empty")
	}

	return &CommandSpawner{argv: argv}, nil
}

// Spawn implements Spawner. The process outlives ctx; only its start is bounded by it.
func (c *CommandSpawner) Spawn(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r := strings.NewReplacer(
		"{host}", req.Host,
		"{port}", strconv.Itoa(int(req.Port)),
		"{token}", req.Token,
		"{protocol}", strconv.Itoa(req.ProtocolVersion),
	)
	args := make([]string, len(c.argv))
	for i, a := range c.argv {
		args[i] = r.Replace(a)
	}

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec
	cmd.Env = append(os.Environ(), TokenEnv+"="+req.Token)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start session for %s:%d: %w", req.Host, req.Port, err)
	}

	logCtx := log.With().
		Str("ip", req.Host).
		Uint16("port", req.Port).
		Int("pid", cmd.Process.Pid).
		Logger()
	logCtx.Debug().Msg("Session started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := cmd.Wait(); err != nil {
			logCtx.Debug().Err(err).Msg("Session exited with error")
			return
		}
		logCtx.Debug().Msg("Session finished")
	}()

	return nil
}

// Wait blocks until every started session has exited or ctx is done.
// Sessions still running when ctx ends are left alone.
func (c *CommandSpawner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
