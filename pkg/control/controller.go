// Package control 对已部署的发布版本执行生命周期命令
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/phase"
	"github.com/wentf9/gitlab-deploy/pkg/runner"
)

// HostResolver 由阶段和项目 id 得到主机集合
type HostResolver interface {
	Resolve(phase string, projectID uint64) (phase.HostSet, error)
}

// Request 一次控制操作的目标
type Request struct {
	Phase   string
	Release layout.Release
}

type Controller struct {
	Remote   executor.Remote
	Resolver HostResolver
	Config   *config.Configuration
	Log      *slog.Logger
	Now      func() time.Time
}

func New(remote executor.Remote, resolver HostResolver, cfg *config.Configuration, log *slog.Logger) *Controller {
	return &Controller{Remote: remote, Resolver: resolver, Config: cfg, Log: log, Now: time.Now}
}

// forEachHost 解析主机集合后逐台执行，集合为空时只记录警告
func (c *Controller) forEachHost(ctx context.Context, req Request, task func(ctx context.Context, host models.HostSpec, l layout.Layout) error) error {
	if err := req.Release.Validate(); err != nil {
		return err
	}
	hosts, err := c.Resolver.Resolve(req.Phase, req.Release.ProjectID)
	if err != nil {
		return err
	}
	if len(hosts) == 0 {
		c.Log.Warn("no hosts to control", "phase", req.Phase, "project_id", req.Release.ProjectID)
		return nil
	}
	return runner.RunSequential(ctx, hosts, c.Log, func(ctx context.Context, host models.HostSpec) error {
		home, err := executor.GetSSHHome(ctx, c.Remote, host)
		if err != nil {
			return err
		}
		return task(ctx, host, layout.New(home, c.Config.ProjectDirectory, req.Release))
	})
}

// Backend 对后端发布执行 docker-compose 命令
func (c *Controller) Backend(ctx context.Context, req Request, cmd Command) error {
	err := c.forEachHost(ctx, req, func(ctx context.Context, host models.HostSpec, l layout.Layout) error {
		c.Log.Info("controlling", "host", host.String(), "command", cmd.String(), "release", l.ReleaseName())
		if cmd == DownAndUp {
			c.handover(ctx, host, l)
		}
		if _, err := c.Remote.Run(ctx, host, LifecycleCommand(l, cmd, c.Config.LogTailWindow, c.Now())); err != nil {
			return fmt.Errorf("control %s failed: %w", cmd, err)
		}
		if cmd.WritesLastUp() {
			if _, err := c.Remote.Run(ctx, host, LastUpCommand(l), executor.WithCapture()); err != nil {
				c.Log.Warn("the latest version information cannot be written", "host", host.String(), "error", err)
			}
		}
		return nil
	})
	if err == nil {
		c.Log.Info("control finished", "command", cmd.String())
	}
	return err
}

// handover 读取 last-up，指向其他版本时先尝试 down，失败只记录警告
func (c *Controller) handover(ctx context.Context, host models.HostSpec, l layout.Layout) {
	res, err := c.Remote.Run(ctx, host, "cat "+executor.Quote(l.LastUp()), executor.WithCapture())
	if err != nil {
		c.Log.Debug("no previous release recorded", "host", host.String(), "error", err)
		return
	}
	previous := strings.TrimSpace(string(res.Stdout))
	switch {
	case previous == "":
		return
	case previous == l.ReleaseName():
		c.Log.Debug("previous release is the target release", "host", host.String(), "release", previous)
		return
	}
	if err := models.ValidateReleaseName(previous); err != nil {
		c.Log.Warn("ignoring malformed last-up", "host", host.String(), "error", err)
		return
	}

	c.Log.Info("trying to shut down the previous release first", "host", host.String(), "release", previous)
	if _, err := c.Remote.Run(ctx, host, ShutdownCommand(l, previous)); err != nil {
		c.Log.Warn(previous+" cannot be fully shut down", "host", host.String(), "error", err)
	}
}

// ErrArtifactNotFound 发布目录中没有 *.tar.zst
var ErrArtifactNotFound = errors.New("no artifact found in release directory")

// Frontend 重新应用已上传的前端产物
func (c *Controller) Frontend(ctx context.Context, req Request) error {
	return c.forEachHost(ctx, req, func(ctx context.Context, host models.HostSpec, l layout.Layout) error {
		res, err := c.Remote.Run(ctx, host, FindArtifactCommand(l), executor.WithCapture())
		if err != nil {
			return fmt.Errorf("find artifact: %w", err)
		}
		artifact := strings.TrimSpace(string(res.Stdout))
		if artifact == "" {
			return fmt.Errorf("%w: %s", ErrArtifactNotFound, l.ReleaseDir())
		}
		return Apply(ctx, c.Remote, host, l, artifact, c.Config.ServiceDirectory, c.Now(), c.Log)
	})
}

// Apply 解压前端产物并替换 html 目录，前端部署与控制共用
func Apply(ctx context.Context, r executor.Remote, host models.HostSpec, l layout.Layout, artifact, serviceDirectory string, now time.Time, log *slog.Logger) error {
	publicName := PublicName(artifact)
	if err := models.ValidateName("public name", publicName); err != nil {
		return err
	}
	htmlDir := l.HTMLDir(serviceDirectory, publicName)
	log.Info("applying", "host", host.String(), "artifact", artifact, "html", htmlDir)
	if _, err := r.Run(ctx, host, ApplyCommand(l, artifact, htmlDir, now)); err != nil {
		return fmt.Errorf("apply %s: %w", artifact, err)
	}
	return nil
}

// Simple 在每台主机上执行任意命令，成功后写审计日志
func (c *Controller) Simple(ctx context.Context, req Request, argv []string, inject bool) error {
	return c.forEachHost(ctx, req, func(ctx context.Context, host models.HostSpec, l layout.Layout) error {
		command, err := SimpleCommand(l, argv, inject)
		if err != nil {
			return err
		}
		c.Log.Info("controlling", "host", host.String(), "command", command)
		if _, err := c.Remote.Run(ctx, host, command); err != nil {
			return fmt.Errorf("control failed: %w", err)
		}
		if _, err := c.Remote.Run(ctx, host, SimpleAuditCommand(l, c.Now(), strings.Join(argv, " ")), executor.WithCapture()); err != nil {
			return fmt.Errorf("write control log: %w", err)
		}
		return nil
	})
}
