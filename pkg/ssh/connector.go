package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Connector 负责创建并缓存 SSH 连接
// 同一主机在一次运行中只握手一次
type Connector struct {
	Options Options
	Log     *slog.Logger

	mu      sync.Mutex
	clients map[models.HostSpec]*ssh.Client
	stop    chan struct{}
	// singleflight 合并对同一主机的并发连接请求
	sf singleflight.Group
}

func NewConnector(opts Options, log *slog.Logger) *Connector {
	return &Connector{
		Options: opts,
		Log:     log,
		clients: make(map[models.HostSpec]*ssh.Client),
		stop:    make(chan struct{}),
	}
}

func (c *Connector) cached(host models.HostSpec) (*ssh.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cli, ok := c.clients[host]
	return cli, ok
}

// Connect 建立到 host 的连接，配置了 ProxyJump 时先连接跳板机
func (c *Connector) Connect(ctx context.Context, host models.HostSpec) (*Client, error) {
	if cli, ok := c.cached(host); ok {
		return NewClient(cli, host), nil
	}
	result, err, _ := c.sf.Do(host.String(), func() (interface{}, error) {
		if cli, ok := c.cached(host); ok {
			return cli, nil
		}

		var dialer Dialer = &net.Dialer{Timeout: c.Options.dialTimeout()}
		if c.Options.hasProxyJump() && host != c.Options.ProxyJump {
			jump, err := c.dial(ctx, c.Options.ProxyJump, dialer)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to jump host '%s': %w", c.Options.ProxyJump, err)
			}
			dialer = &SSHProxyDialer{Client: jump}
		}
		return c.dial(ctx, host, dialer)
	})
	if err != nil {
		return nil, err
	}
	return NewClient(result.(*ssh.Client), host), nil
}

// dial 拨号并完成握手，成功后放入缓存
func (c *Connector) dial(ctx context.Context, host models.HostSpec, dialer Dialer) (*ssh.Client, error) {
	if cli, ok := c.cached(host); ok {
		return cli, nil
	}
	methods, cleanup, err := authMethods(c.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to build ssh config for '%s': %w", host, err)
	}
	defer cleanup()

	config := &ssh.ClientConfig{
		User: host.User,
		Auth: methods,
		// 与 StrictHostKeyChecking=no 保持一致
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.Options.dialTimeout(),
	}

	addr := host.Addr()
	dialCtx, cancel := context.WithTimeout(ctx, c.Options.dialTimeout())
	defer cancel()
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial '%s': %w", addr, err)
	}
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed for '%s': %w", host, err)
	}
	cli := ssh.NewClient(ncc, chans, reqs)

	if c.Options.KeepAlive > 0 {
		StartKeepAlive(cli, c.Options.KeepAlive, c.stop, func(err error) {
			if c.Log != nil {
				c.Log.Warn("ssh keepalive failed", "host", host.String(), "error", err)
			}
			c.forget(host, cli)
		})
	}

	c.mu.Lock()
	c.clients[host] = cli
	c.mu.Unlock()
	return cli, nil
}

func (c *Connector) forget(host models.HostSpec, cli *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clients[host] == cli {
		delete(c.clients, host)
	}
}

// CloseAll 关闭所有缓存的连接 (在程序退出前调用)
func (c *Connector) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	for host, cli := range c.clients {
		cli.Close()
		delete(c.clients, host)
	}
}
