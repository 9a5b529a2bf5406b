package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Local 本地进程执行，用于构建脚本和工具检查
type Local interface {
	Run(ctx context.Context, dir string, argv []string, env ...string) error
	Check(tools ...string) error
}

// LocalExecutor 本地执行器
type LocalExecutor struct {
	Timeout time.Duration
	Stdout  io.Writer
	Stderr  io.Writer
	Log     *slog.Logger
}

func NewLocalExecutor(timeout time.Duration, log *slog.Logger) *LocalExecutor {
	return &LocalExecutor{Timeout: timeout, Stdout: os.Stdout, Stderr: os.Stderr, Log: log}
}

// Run 在 dir 中执行 argv，输出直接转发到终端，标准错误同时保留在错误信息中
// env 追加在当前进程环境变量之后
func (e *LocalExecutor) Run(ctx context.Context, dir string, argv []string, env ...string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	ro := newRunOptions(e.Timeout, nil)
	ctx, cancel := ro.context(ctx)
	defer cancel()

	display := QuoteAll(argv...)
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = dir
	if len(env) > 0 {
		c.Env = append(os.Environ(), env...)
	}
	if e.Log != nil {
		e.Log.Debug("local", "dir", dir, "command", display)
	}

	var stderr bytes.Buffer
	c.Stdout = orDefault(e.Stdout, os.Stdout)
	c.Stderr = io.MultiWriter(orDefault(e.Stderr, os.Stderr), &stderr)
	err := c.Run()
	_, err = collect(err, "local", display, nil, stderr.Bytes())
	return err
}

// Check 确认所需的本地工具都在 PATH 中
func (e *LocalExecutor) Check(tools ...string) error {
	var missing []string
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tools not found in PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
