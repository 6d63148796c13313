package dataset

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Versioner tracks dataset directories in an external version store.
type Versioner interface {
	Add(ctx context.Context, dir string) error
	Push(ctx context.Context, dir string) error
	Pull(ctx context.Context, dir string) error
}

// Cmd describes a command to execute.
type Cmd struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, c Cmd) ([]byte, error)

// RunCmd runs c with the inherited environment plus c.Env.
func RunCmd(ctx context.Context, c Cmd) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd.CombinedOutput()
}

// DVC drives the dvc CLI. Commands run in WorkDir, the repository root that
// contains the data dir.
type DVC struct {
	Bin     string
	WorkDir string
	Timeout time.Duration
	Run     Runner
}

// NewDVC returns a DVC versioner with defaults for empty fields.
func NewDVC(bin, workDir string) *DVC {
	if bin == "" {
		bin = "dvc"
	}
	return &DVC{Bin: bin, WorkDir: workDir, Timeout: 2 * time.Minute, Run: RunCmd}
}

func (d *DVC) exec(ctx context.Context, args ...string) error {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	run := d.Run
	if run == nil {
		run = RunCmd
	}
	out, err := run(ctx, Cmd{Path: d.Bin, Args: args, Dir: d.WorkDir})
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", d.Bin, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *DVC) Add(ctx context.Context, dir string) error { return d.exec(ctx, "add", dir) }

func (d *DVC) Push(ctx context.Context, dir string) error { return d.exec(ctx, "push", dir+".dvc") }

func (d *DVC) Pull(ctx context.Context, dir string) error { return d.exec(ctx, "pull", dir+".dvc") }
