package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// Command describes a single subprocess invocation.
type Command struct {
	Dir       string
	Name      string
	Args      []string
	Timeout   time.Duration
	MaxOutput int
}

// Output captures what the subprocess wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// Runner executes commands. ExecRunner is the production implementation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Output, error)
}

// ExecRunner runs commands with os/exec, killing the process when the
// timeout elapses or either output stream exceeds MaxOutput bytes.
type ExecRunner struct{}

// Run executes c and returns its captured output.
func (ExecRunner) Run(ctx context.Context, c Command) (Output, error) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stdout := &cappedBuffer{limit: c.MaxOutput, onOverflow: cancel}
	stderr := &cappedBuffer{limit: c.MaxOutput, onOverflow: cancel}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...) // #nosec G204 -- command comes from config.
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	switch {
	case stdout.Overflowed() || stderr.Overflowed():
		return out, fmt.Errorf("%w: limit %d bytes", conductio.ErrBufferOverflow, c.MaxOutput)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return out, fmt.Errorf("%w after %s", conductio.ErrToolTimeout, c.Timeout)
	case err != nil:
		if detail := stderrTail(out.Stderr); detail != "" {
			return out, fmt.Errorf("run %s: %w: %s", c.Name, err, detail)
		}
		return out, fmt.Errorf("run %s: %w", c.Name, err)
	}
	return out, nil
}

// cappedBuffer stores at most limit bytes. Once the limit is crossed it calls
// onOverflow and keeps draining so the child never blocks on a full pipe.
type cappedBuffer struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	limit      int
	over       bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit <= 0 || b.buf.Len()+len(p) <= b.limit {
		n, err := b.buf.Write(p)
		if err != nil {
			return n, fmt.Errorf("buffer output: %w", err)
		}
		return n, nil
	}
	if remaining := b.limit - b.buf.Len(); remaining > 0 {
		b.buf.Write(p[:remaining])
	}
	if !b.over {
		b.over = true
		if b.onOverflow != nil {
			b.onOverflow()
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.over
}

func stderrTail(stderr []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(stderr))
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}
