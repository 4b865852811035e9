package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"browserq/internal/config"
	"browserq/internal/ports"

	"github.com/mattn/go-shellwords"
)

var _ ports.Agent = (*ExecAgent)(nil)

// ExecAgent runs a local command per job. The task is written to stdin and
// the trimmed stdout is the result.
type ExecAgent struct {
	Command     []string
	Model       string
	ModelAPIKey string
	Headless    bool
}

func NewExec(cfg config.Agent) (*ExecAgent, error) {
	args, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse AGENT_COMMAND: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("AGENT_COMMAND is required for the exec agent")
	}
	return &ExecAgent{
		Command:     args,
		Model:       cfg.Model,
		ModelAPIKey: cfg.ModelAPIKey,
		Headless:    cfg.Headless,
	}, nil
}

// Configure gives each session a private work directory, used by the
// command as its browser profile and scratch space.
func (a *ExecAgent) Configure(ctx context.Context) (ports.Session, error) {
	dir, err := os.MkdirTemp("", "browserq-session-*")
	if err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &execSession{agent: a, dir: dir}, nil
}

type execSession struct {
	agent *ExecAgent
	dir   string
}

func (s *execSession) Execute(ctx context.Context, task string, timeout time.Duration) (string, error) {
	cmd := exec.CommandContext(ctx, s.agent.Command[0], s.agent.Command[1:]...)
	cmd.Dir = s.dir
	cmd.WaitDelay = 5 * time.Second
	cmd.Stdin = strings.NewReader(task)
	cmd.Env = append(os.Environ(),
		"AGENT_TASK="+task,
		"AGENT_TIMEOUT="+strconv.Itoa(int(timeout/time.Second)),
		"AGENT_MODEL="+s.agent.Model,
		"AGENT_HEADLESS="+strconv.FormatBool(s.agent.Headless),
		"AGENT_WORKDIR="+s.dir,
	)
	if s.agent.ModelAPIKey != "" {
		cmd.Env = append(cmd.Env, "GOOGLE_API_KEY="+s.agent.ModelAPIKey)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("agent command: %w: %s", err, tail(msg, 512))
		}
		return "", fmt.Errorf("agent command: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (s *execSession) Close() error {
	return os.RemoveAll(s.dir)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
