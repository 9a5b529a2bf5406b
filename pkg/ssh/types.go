package ssh

import (
	"context"
	"net"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Dialer 定义网络连接行为的接口
// 用于统一 "直连" 和 "通过 SSH 跳板机连接" 的行为
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Options 原生 SSH 连接参数
type Options struct {
	// KeyPaths 私钥文件，为空时尝试 ~/.ssh 下的默认私钥
	KeyPaths []string
	// UseAgent 是否使用 SSH_AUTH_SOCK 指向的 ssh-agent
	UseAgent bool
	// ProxyJump 跳板机，零值表示直连
	ProxyJump models.HostSpec
	// KeepAlive 心跳间隔，0 表示不发送
	KeepAlive time.Duration
	// DialTimeout TCP 连接与握手超时
	DialTimeout time.Duration
}

const defaultDialTimeout = 15 * time.Second

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return defaultDialTimeout
}

func (o Options) hasProxyJump() bool {
	return o.ProxyJump.Host != ""
}
