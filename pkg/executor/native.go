package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/sftp"
	"github.com/wentf9/gitlab-deploy/pkg/ssh"
)

// Native 基于 x/crypto/ssh 的 Remote 实现，不依赖系统 ssh/scp
// 同一主机的连接在整个运行期间复用
type Native struct {
	Connector *ssh.Connector
	Timeout   time.Duration
	Stdout    io.Writer
	Stderr    io.Writer
	Log       *slog.Logger
}

func NewNative(opts ssh.Options, timeout time.Duration, log *slog.Logger) *Native {
	return &Native{
		Connector: ssh.NewConnector(opts, log),
		Timeout:   timeout,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Log:       log,
	}
}

func (n *Native) Run(ctx context.Context, host models.HostSpec, command string, opts ...RunOption) (*Result, error) {
	ro := newRunOptions(n.Timeout, opts)
	ctx, cancel := ro.context(ctx)
	defer cancel()

	client, err := n.Connector.Connect(ctx, host)
	if err != nil {
		return &Result{ExitCode: -1}, &ExecError{Target: host.String(), Command: command, ExitCode: -1, Err: err}
	}
	n.Log.Debug("ssh", "host", host.String(), "command", command)

	var stdout, stderr bytes.Buffer
	var outW, errW io.Writer = &stdout, &stderr
	if !ro.capture {
		outW = orDefault(n.Stdout, os.Stdout)
		errW = io.MultiWriter(orDefault(n.Stderr, os.Stderr), &stderr)
	}
	code, err := client.Exec(ctx, command, ro.stdin, outW, errW)
	res := &Result{ExitCode: code, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil || code != 0 {
		return res, &ExecError{Target: host.String(), Command: command, ExitCode: code, Stderr: stderr.String(), Err: err}
	}
	return res, nil
}

// Copy 通过 SFTP 上传，终端下显示进度条
func (n *Native) Copy(ctx context.Context, host models.HostSpec, localPath, remotePath string) error {
	ro := newRunOptions(n.Timeout, nil)
	ctx, cancel := ro.context(ctx)
	defer cancel()

	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	client, err := n.Connector.Connect(ctx, host)
	if err != nil {
		return err
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		return err
	}
	defer sc.Close()

	n.Log.Info("uploading", "host", host.String(), "file", path.Base(remotePath), "size", humanize.Bytes(uint64(info.Size())))

	var progress sftp.ProgressCallback
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.DefaultBytes(info.Size(), path.Base(remotePath))
		defer bar.Close()
		progress = func(n int) { bar.Add(n) }
	}
	if err := sc.Upload(ctx, localPath, remotePath, progress); err != nil {
		return fmt.Errorf("upload %s to %s:%s: %w", localPath, host, remotePath, err)
	}
	return nil
}

// Close 关闭所有缓存的连接
func (n *Native) Close() {
	n.Connector.CloseAll()
}
