package models

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
)

// DefaultSSHPort 未显式指定端口时使用的 SSH 端口
const DefaultSSHPort uint16 = 22

var hostSpecRegexp = regexp.MustCompile(`^([^/\s]+)@([^/\s:]+)(?::([0-9]{1,5}))?$`)

// HostSpec 定义一个部署目标: SSH 用户、主机和端口
// 值类型，三个字段共同决定相等性，可直接作为 map 的 key
type HostSpec struct {
	User string
	Host string
	Port uint16
}

// ParseHostSpec 解析 user@host[:port] 格式的字符串
func ParseHostSpec(s string) (HostSpec, error) {
	m := hostSpecRegexp.FindStringSubmatch(s)
	if m == nil {
		return HostSpec{}, fmt.Errorf("%q is not a correct SSH user and host", s)
	}
	port := DefaultSSHPort
	if m[3] != "" {
		p, err := strconv.ParseUint(m[3], 10, 16)
		if err != nil || p == 0 {
			return HostSpec{}, fmt.Errorf("%q has an invalid port", s)
		}
		port = uint16(p)
	}
	return HostSpec{User: m[1], Host: m[2], Port: port}, nil
}

// UserHost 返回 user@host, 供 ssh/scp 命令行使用
func (h HostSpec) UserHost() string {
	return h.User + "@" + h.Host
}

// Addr 返回 host:port, 供原生 SSH 拨号使用
func (h HostSpec) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.GetPort())))
}

// GetPort 返回端口，零值视为 22
func (h HostSpec) GetPort() uint16 {
	if h.Port == 0 {
		return DefaultSSHPort
	}
	return h.Port
}

// String 展示形式，端口为 22 时省略
func (h HostSpec) String() string {
	if h.GetPort() == DefaultSSHPort {
		return h.UserHost()
	}
	return fmt.Sprintf("%s:%d", h.UserHost(), h.Port)
}
