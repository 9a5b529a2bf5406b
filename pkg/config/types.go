package config

import (
	"fmt"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/ssh"
)

const (
	TransportOpenSSH = "openssh"
	TransportNative  = "native"
)

// Configuration 对应 yaml 文件的顶层结构
type Configuration struct {
	// PhaseDirectory 阶段文件所在目录，相对于本地 $HOME
	PhaseDirectory string `yaml:"phase_directory"`
	// ProjectDirectory 远程项目目录，相对于远程 $HOME
	ProjectDirectory string `yaml:"project_directory"`
	// ServiceDirectory 前端 html 目录的上级，相对于远程 $HOME
	ServiceDirectory string `yaml:"service_directory"`
	// Transport openssh 使用系统 ssh/scp，native 使用内置客户端
	Transport string `yaml:"transport"`
	// CommandTimeout 单个子进程的超时，0 表示不限制
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// LogTailWindow up 之后跟踪日志的时长
	LogTailWindow time.Duration `yaml:"log_tail_window"`
	SSH           SSHConfig     `yaml:"ssh"`
	GitLab        GitLabConfig  `yaml:"gitlab"`
}

type SSHConfig struct {
	KeyPath   []string      `yaml:"key_path"`
	UseAgent  bool          `yaml:"use_agent"`
	ProxyJump string        `yaml:"proxy_jump"`
	KeepAlive time.Duration `yaml:"keepalive"`
}

type GitLabConfig struct {
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
}

// Default 未提供配置文件时使用的配置
func Default() *Configuration {
	return &Configuration{
		PhaseDirectory:   ".gitlab-deploy/phases",
		ProjectDirectory: "gitlab-deploy/projects",
		ServiceDirectory: "gitlab-deploy/services",
		Transport:        TransportOpenSSH,
		LogTailWindow:    10 * time.Second,
		SSH: SSHConfig{
			UseAgent:  true,
			KeepAlive: 30 * time.Second,
		},
		GitLab: GitLabConfig{
			Timeout: 10 * time.Minute,
		},
	}
}

func (c *Configuration) Validate() error {
	switch c.Transport {
	case TransportOpenSSH, TransportNative:
	default:
		return fmt.Errorf("unsupported transport %q, expected %s or %s", c.Transport, TransportOpenSSH, TransportNative)
	}
	for name, dir := range map[string]string{
		"phase_directory":   c.PhaseDirectory,
		"project_directory": c.ProjectDirectory,
		"service_directory": c.ServiceDirectory,
	} {
		if dir == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if c.CommandTimeout < 0 || c.LogTailWindow < 0 || c.SSH.KeepAlive < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.SSH.ProxyJump != "" {
		if _, err := models.ParseHostSpec(c.SSH.ProxyJump); err != nil {
			return fmt.Errorf("ssh.proxy_jump: %w", err)
		}
	}
	return nil
}

// SSHOptions 转换为原生 SSH 连接参数
func (c *Configuration) SSHOptions() (ssh.Options, error) {
	opts := ssh.Options{
		KeyPaths:  c.SSH.KeyPath,
		UseAgent:  c.SSH.UseAgent,
		KeepAlive: c.SSH.KeepAlive,
	}
	if c.SSH.ProxyJump != "" {
		jump, err := models.ParseHostSpec(c.SSH.ProxyJump)
		if err != nil {
			return ssh.Options{}, fmt.Errorf("ssh.proxy_jump: %w", err)
		}
		opts.ProxyJump = jump
	}
	return opts, nil
}
