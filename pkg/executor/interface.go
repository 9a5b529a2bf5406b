package executor

import (
	"context"
	"io"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Remote 在目标主机上执行命令、推送文件
// OpenSSH 调用系统的 ssh/scp，Native 使用 x/crypto/ssh 与 sftp
type Remote interface {
	// Run 阻塞执行一条远程 shell 命令，command 中的路径需由调用方按目标 shell 规则转义
	// 退出码非 0 时返回 *ExecError，同时返回的 Result 仍然有效
	Run(ctx context.Context, host models.HostSpec, command string, opts ...RunOption) (*Result, error)
	// Copy 推送本地文件到远程路径
	Copy(ctx context.Context, host models.HostSpec, localPath, remotePath string) error
}

// Result 一次执行的结果，Stdout 仅在 WithCapture 时填充
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

type RunOption func(*runOptions)

type runOptions struct {
	stdin   io.Reader
	capture bool
	timeout time.Duration
}

// WithStdin 把 r 作为远程命令的标准输入
func WithStdin(r io.Reader) RunOption {
	return func(o *runOptions) {
		o.stdin = r
	}
}

// WithCapture 捕获标准输出，否则直接输出到终端
func WithCapture() RunOption {
	return func(o *runOptions) {
		o.capture = true
	}
}

// WithTimeout 覆盖单次执行的超时，0 表示不限制
func WithTimeout(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.timeout = d
	}
}

func newRunOptions(defaultTimeout time.Duration, opts []RunOption) runOptions {
	o := runOptions{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o runOptions) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// StdinOf 取出选项中的标准输入，供 Remote 的实现者和测试使用
func StdinOf(opts []RunOption) io.Reader {
	return newRunOptions(0, opts).stdin
}

// TimeoutOf 取出选项中的超时，未指定时为 0
func TimeoutOf(opts []RunOption) time.Duration {
	return newRunOptions(0, opts).timeout
}
