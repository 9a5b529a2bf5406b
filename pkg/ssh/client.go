package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

type Client struct {
	sshClient *ssh.Client
	host      models.HostSpec
}

func NewClient(raw *ssh.Client, host models.HostSpec) *Client {
	return &Client{
		sshClient: raw,
		host:      host,
	}
}

// SSHClient 暴露底层的 ssh.Client (供 SFTP 使用)
func (c *Client) SSHClient() *ssh.Client {
	return c.sshClient
}

// Exec 执行一条命令并返回退出码
// 命令被信号终止或连接断开时退出码为 -1
func (c *Client) Exec(ctx context.Context, command string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	session, err := c.sshClient.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to open session on %s: %w", c.host, err)
	}
	defer session.Close()

	session.Stdin = stdin
	session.Stdout = stdout
	session.Stderr = stderr
	return startWithTimeout(ctx, session, command)
}

func startWithTimeout(ctx context.Context, session *ssh.Session, command string) (int, error) {
	if err := session.Start(command); err != nil {
		return -1, fmt.Errorf("failed to start command: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return exitCode(err)
	case <-ctx.Done():
		// 上下文取消，尝试终止远程命令
		session.Signal(ssh.SIGKILL)
		session.Close()
		return -1, ctx.Err()
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal() != "" {
			return -1, nil
		}
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, nil
	}
	return -1, err
}
