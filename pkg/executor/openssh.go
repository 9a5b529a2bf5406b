package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

var hardeningOptions = []string{
	"-o", "StrictHostKeyChecking=no",
	"-o", "BatchMode=yes",
}

// CreateSSHCommand 构造 ssh 调用，command 作为单个参数交给远程 shell
func CreateSSHCommand(ctx context.Context, host models.HostSpec, command string) *exec.Cmd {
	args := append([]string{}, hardeningOptions...)
	args = append(args, "-p", strconv.Itoa(int(host.GetPort())), host.UserHost(), command)
	return exec.CommandContext(ctx, "ssh", args...)
}

// CreateSCPCommand 构造 scp 调用，把本地文件 from 推送到 host 的 to
func CreateSCPCommand(ctx context.Context, host models.HostSpec, from, to string) *exec.Cmd {
	args := append([]string{}, hardeningOptions...)
	args = append(args, "-P", strconv.Itoa(int(host.GetPort())), from, host.UserHost()+":"+to)
	return exec.CommandContext(ctx, "scp", args...)
}

// OpenSSH 调用系统 ssh/scp 的 Remote 实现
type OpenSSH struct {
	// Timeout 单个子进程的默认超时，0 表示不限制
	Timeout time.Duration
	// Stdout/Stderr 未捕获时的输出位置，默认为进程的标准输出/错误
	Stdout io.Writer
	Stderr io.Writer
	Log    *slog.Logger
}

func NewOpenSSH(timeout time.Duration, log *slog.Logger) *OpenSSH {
	return &OpenSSH{Timeout: timeout, Stdout: os.Stdout, Stderr: os.Stderr, Log: log}
}

func (o *OpenSSH) Run(ctx context.Context, host models.HostSpec, command string, opts ...RunOption) (*Result, error) {
	ro := newRunOptions(o.Timeout, opts)
	ctx, cancel := ro.context(ctx)
	defer cancel()

	cmd := CreateSSHCommand(ctx, host, command)
	cmd.Stdin = ro.stdin
	o.debug("ssh", "host", host.String(), "command", command)
	return o.execute(cmd, host.String(), command, ro.capture)
}

func (o *OpenSSH) Copy(ctx context.Context, host models.HostSpec, localPath, remotePath string) error {
	ro := newRunOptions(o.Timeout, nil)
	ctx, cancel := ro.context(ctx)
	defer cancel()

	cmd := CreateSCPCommand(ctx, host, localPath, remotePath)
	o.debug("scp", "host", host.String(), "from", localPath, "to", remotePath)
	_, err := o.execute(cmd, host.String(), "scp "+localPath+" "+remotePath, false)
	return err
}

func (o *OpenSSH) execute(cmd *exec.Cmd, target, display string, capture bool) (*Result, error) {
	var stdout, stderr bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	} else {
		cmd.Stdout = orDefault(o.Stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(orDefault(o.Stderr, os.Stderr), &stderr)
	}
	err := cmd.Run()
	return collect(err, target, display, stdout.Bytes(), stderr.Bytes())
}

func (o *OpenSSH) debug(msg string, args ...any) {
	if o.Log != nil {
		o.Log.Debug(msg, args...)
	}
}

// collect 把 exec 的错误转换为 Result 与 *ExecError
func collect(err error, target, display string, stdout, stderr []byte) (*Result, error) {
	res := &Result{Stdout: stdout, Stderr: stderr}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExecError{Target: target, Command: display, ExitCode: res.ExitCode, Stderr: string(stderr)}
	}
	res.ExitCode = -1
	return res, &ExecError{Target: target, Command: display, ExitCode: -1, Stderr: string(stderr), Err: err}
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
