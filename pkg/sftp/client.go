package sftp

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/wentf9/gitlab-deploy/pkg/ssh"
)

// Option 定义配置函数的类型
type Option func(*Client)

func WithThreadsPerFile(t int) Option {
	return func(c *Client) {
		if t > 0 {
			c.config.ThreadsPerFile = t
		}
	}
}

func WithChunkSize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.ChunkSize = size
		}
	}
}

// remoteFile Upload 写入的远程文件
type remoteFile interface {
	io.Writer
	io.WriterAt
	io.Closer
}

// remoteFS Upload 用到的远程文件操作
type remoteFS interface {
	Create(path string) (remoteFile, error)
	Chmod(path string, mode os.FileMode) error
	Close() error
}

type sftpFS struct {
	*sftp.Client
}

func (s sftpFS) Create(path string) (remoteFile, error) {
	return s.Client.Create(path)
}

// Client 在已有 SSH 连接(包括跳板机隧道)上打开的 SFTP 会话
type Client struct {
	fs     remoteFS
	config TransferConfig
}

func NewClient(sshCli *ssh.Client, opts ...Option) (*Client, error) {
	client, err := sftp.NewClient(sshCli.SSHClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create sftp subsystem: %w", err)
	}
	return newClient(sftpFS{client}, opts...), nil
}

func newClient(fs remoteFS, opts ...Option) *Client {
	c := &Client{fs: fs, config: DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close 关闭 SFTP 会话，底层 SSH 连接保持打开
func (c *Client) Close() error {
	return c.fs.Close()
}
