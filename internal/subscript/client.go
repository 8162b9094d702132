package subscript

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"folio/internal/config"
)

// errorTailLines is how many trailing output lines are kept for diagnostics
// when the engine fails.
const errorTailLines = 10

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Policy governs how invocations are bounded and retried.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.RetryDelay < 0 {
		p.RetryDelay = 0
	}
	return p
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps transcription engine CLI interactions.
type Client struct {
	binary     string
	configPath string
	policy     Policy
	exec       Executor
}

// New constructs a client for the engine binary.
func New(binary, configPath string, policy Policy, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("engine binary required")
	}
	client := &Client{
		binary:     binary,
		configPath: configPath,
		policy:     policy.normalized(),
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig builds a client from the engine section of the configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	policy := Policy{
		Timeout:     time.Duration(cfg.Subscript.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.Subscript.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Subscript.RetryDelaySeconds) * time.Second,
	}
	return New(cfg.Subscript.Binary, cfg.Subscript.ConfigPath, policy, opts...)
}

// RunError carries the tail of the engine output alongside the spawn failure
// so callers can persist a useful diagnostic.
type RunError struct {
	Err  error
	Tail []string
}

func (e *RunError) Error() string {
	if len(e.Tail) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v\n%s", e.Err, strings.Join(e.Tail, "\n"))
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Run executes an invocation under the client policy. Attempts beyond the
// first wait out the retry delay; the last failure is returned with the tail
// of the engine output attached.
func (c *Client) Run(ctx context.Context, cmd Command, onLine func(string)) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	args := cmd.Args()
	if c.configPath != "" {
		args = append([]string{"--config", c.configPath}, args...)
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 && c.policy.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.policy.RetryDelay):
			}
		}

		lastErr = c.runOnce(ctx, args, onLine)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) runOnce(ctx context.Context, args []string, onLine func(string)) error {
	runCtx := ctx
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}

	tail := newTailBuffer(errorTailLines)
	err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	})
	if err != nil {
		return &RunError{Err: fmt.Errorf("engine run: %w", err), Tail: tail.lines()}
	}
	return nil
}

// tailBuffer keeps the last n lines seen.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []string
	next  int
	full  bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit, buf: make([]string, limit)}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = line
	t.next = (t.next + 1) % t.limit
	if t.next == 0 {
		t.full = true
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.buf[:t.next]...)
	}
	out := make([]string, 0, t.limit)
	out = append(out, t.buf[t.next:]...)
	out = append(out, t.buf[:t.next]...)
	return out
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			forwardLine(onLine, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}

func forwardLine(onLine func(string), line string) {
	if onLine != nil {
		onLine(line)
		return
	}
	fmt.Fprintln(os.Stderr, line)
}
