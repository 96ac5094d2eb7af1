package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Transport is a line-oriented duplex channel to an engine. Lines is closed
// when the engine goes away.
type Transport interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// Process runs an engine binary and talks to it over stdin/stdout.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// StartProcess launches the engine at path. The process is killed when ctx
// is cancelled.
func StartProcess(ctx context.Context, path string, logger zerolog.Logger, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", path, err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		logger: logger.With().Str("engine", path).Logger(),
		done:   make(chan struct{}),
	}
	go p.readLoop(stdout)
	p.logger.Info().Int("pid", cmd.Process.Pid).Msg("engine started")
	return p, nil
}

func (p *Process) readLoop(r io.Reader) {
	defer close(p.lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		p.logger.Trace().Str("recv", line).Msg("engine output")
		select {
		case p.lines <- line:
		case <-p.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn().Err(err).Msg("engine output read failed")
	}
}

func (p *Process) Send(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrDisconnected
	}
	p.logger.Trace().Str("send", line).Msg("engine input")
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write to engine: %w", err)
	}
	return nil
}

func (p *Process) Lines() <-chan string {
	return p.lines
}

// Close shuts stdin and waits for the process to exit.
func (p *Process) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	_ = p.stdin.Close()
	err := p.cmd.Wait()
	p.logger.Info().Err(err).Msg("engine exited")
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
