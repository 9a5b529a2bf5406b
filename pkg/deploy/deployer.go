// Package deploy 取得项目快照、本地构建，然后把产物逐台推送到阶段内的主机
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/control"
	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/phase"
	"github.com/wentf9/gitlab-deploy/pkg/project"
	"github.com/wentf9/gitlab-deploy/pkg/runner"
	"github.com/wentf9/gitlab-deploy/pkg/source"
)

// Request 一次部署
type Request struct {
	Phase       string
	Release     layout.Release
	BuildTarget string
	Source      source.Source
}

func (r Request) validate(requireTarget bool) error {
	if err := r.Release.Validate(); err != nil {
		return err
	}
	if r.BuildTarget != "" || requireTarget {
		if err := models.ValidateBuildTarget(r.BuildTarget); err != nil {
			return err
		}
	}
	if r.Source == nil {
		return fmt.Errorf("no project source given")
	}
	return nil
}

type Deployer struct {
	Remote   executor.Remote
	Local    executor.Local
	Resolver control.HostResolver
	Config   *config.Configuration
	Log      *slog.Logger
	Now      func() time.Time
	// TempDir 临时目录的上级，为空时使用系统默认
	TempDir string
}

func New(remote executor.Remote, local executor.Local, resolver control.HostResolver, cfg *config.Configuration, log *slog.Logger) *Deployer {
	return &Deployer{Remote: remote, Local: local, Resolver: resolver, Config: cfg, Log: log, Now: time.Now}
}

// hosts 集合为空时返回 nil, nil
func (d *Deployer) hosts(req Request) (phase.HostSet, error) {
	hosts, err := d.Resolver.Resolve(req.Phase, req.Release.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		d.Log.Warn("no hosts to deploy", "phase", req.Phase, "project_id", req.Release.ProjectID)
	}
	return hosts, nil
}

func (d *Deployer) workspace() (string, func(), error) {
	dir, err := os.MkdirTemp(d.TempDir, "gitlab-deploy-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// fetchAndBuild 展开快照并执行 check，通过后再构建
func (d *Deployer) fetchAndBuild(ctx context.Context, req Request, dir string, check func(project.Project) error) (project.Project, error) {
	d.Log.Info("fetching project", "source", req.Source.Describe())
	if err := req.Source.Extract(ctx, dir); err != nil {
		return project.Project{}, err
	}
	p := project.New(dir)
	if err := check(p); err != nil {
		return project.Project{}, err
	}
	d.Log.Info("running deploy/build.sh", "target", req.BuildTarget)
	if err := p.Build(ctx, d.Local, req.BuildTarget, req.Release.CommitSHA); err != nil {
		return project.Project{}, err
	}
	return p, nil
}

// prepare 读取远程 $HOME 并创建发布目录
func (d *Deployer) prepare(ctx context.Context, host models.HostSpec, release layout.Release) (layout.Layout, error) {
	home, err := executor.GetSSHHome(ctx, d.Remote, host)
	if err != nil {
		return layout.Layout{}, err
	}
	l := layout.New(home, d.Config.ProjectDirectory, release)
	if err := executor.MakeDirectory(ctx, d.Remote, host, l.ReleaseDir()); err != nil {
		return layout.Layout{}, err
	}
	return l, nil
}

func (d *Deployer) upload(ctx context.Context, host models.HostSpec, localPath, remotePath string) error {
	d.Log.Info("copying artifact", "host", host.String(), "from", localPath, "to", remotePath)
	if err := d.Remote.Copy(ctx, host, localPath, remotePath); err != nil {
		return &TransferError{Step: "copy", Path: fmt.Sprintf("%s to %s:%s", localPath, host.UserHost(), remotePath), Err: err}
	}
	return nil
}

// Frontend 构建静态文件并在每台主机上替换 html 目录
func (d *Deployer) Frontend(ctx context.Context, req Request) error {
	if err := req.validate(true); err != nil {
		return err
	}
	hosts, err := d.hosts(req)
	if err != nil || len(hosts) == 0 {
		return err
	}
	return d.frontend(ctx, req, hosts)
}

func (d *Deployer) frontend(ctx context.Context, req Request, hosts []models.HostSpec) error {
	dir, cleanup, err := d.workspace()
	if err != nil {
		return err
	}
	defer cleanup()

	var fe project.Frontend
	p, err := d.fetchAndBuild(ctx, req, dir, func(p project.Project) (err error) {
		fe, err = p.CheckFrontend()
		return
	})
	if err != nil {
		return err
	}
	info, err := p.CheckArtifact(fe.PublicName)
	if err != nil {
		return err
	}
	d.Log.Info("artifact ready", "file", project.Rel(fe.PublicName+project.ArtifactSuffix), "size", humanize.Bytes(uint64(info.Size())))

	err = runner.RunSequential(ctx, hosts, d.Log, func(ctx context.Context, host models.HostSpec) error {
		l, err := d.prepare(ctx, host, req.Release)
		if err != nil {
			return err
		}
		remoteArtifact := l.Artifact(fe.PublicName)
		if err := d.upload(ctx, host, p.Artifact(fe.PublicName), remoteArtifact); err != nil {
			return err
		}
		if err := control.Apply(ctx, d.Remote, host, l, remoteArtifact, d.Config.ServiceDirectory, d.Now(), d.Log); err != nil {
			return &TransferError{Step: "extract", Path: remoteArtifact, Err: err}
		}
		executor.ListRemoteFiles(ctx, d.Remote, host, l.ReleaseDir(), d.Log)
		return nil
	})
	if err == nil {
		d.Log.Info("deployed successfully", "hosts", len(hosts))
	}
	return err
}

// Backend 构建 docker 镜像，推送 compose 文件与镜像包并在远程加载
func (d *Deployer) Backend(ctx context.Context, req Request) error {
	if err := req.validate(false); err != nil {
		return err
	}
	hosts, err := d.hosts(req)
	if err != nil || len(hosts) == 0 {
		return err
	}

	dir, cleanup, err := d.workspace()
	if err != nil {
		return err
	}
	defer cleanup()

	var be project.Backend
	p, err := d.fetchAndBuild(ctx, req, dir, func(p project.Project) (err error) {
		be, err = p.CheckBackend(req.BuildTarget, req.Release.CommitSHA)
		return
	})
	if err != nil {
		return err
	}
	info, err := p.CheckArtifact(be.ImageName)
	if err != nil {
		return err
	}
	d.Log.Info("artifact ready", "image", be.ImageName, "tag", req.Release.CommitSHA.Short(), "size", humanize.Bytes(uint64(info.Size())))

	err = runner.RunSequential(ctx, hosts, d.Log, func(ctx context.Context, host models.HostSpec) error {
		l, err := d.prepare(ctx, host, req.Release)
		if err != nil {
			return err
		}
		if err := executor.WriteRemoteFile(ctx, d.Remote, host, l.ComposeFile(), strings.NewReader(be.Compose)); err != nil {
			return fmt.Errorf("cannot create the docker compose file: %w", err)
		}
		remoteArtifact := l.Artifact(be.ImageName)
		if err := d.upload(ctx, host, p.Artifact(be.ImageName), remoteArtifact); err != nil {
			return err
		}

		d.Log.Info("loading docker image", "host", host.String(), "image", be.ImageName)
		pipe := executor.Pipeline{
			Source:  d.decompressStage(p.Artifact(be.ImageName)),
			Host:    host,
			Command: "docker image load",
		}
		if err := pipe.Run(ctx, d.Remote); err != nil {
			return &TransferError{Step: "load docker image", Path: filepath.Base(p.Artifact(be.ImageName)), Err: err}
		}
		return nil
	})
	if err == nil {
		d.Log.Info("deployed successfully", "hosts", len(hosts))
	}
	return err
}

// decompressStage 本地有 zstd 时用多线程的 zstd 解压，否则在进程内解压
func (d *Deployer) decompressStage(path string) executor.Stage {
	if d.Local.Check("zstd") == nil {
		return executor.LocalProcess{Argv: []string{"zstd", "-T0", "-d", "-c", "-q", path}}
	}
	return executor.ZstdFile{Path: path}
}

// Simple 不构建，直接把原始归档解压到每台主机的发布目录
func (d *Deployer) Simple(ctx context.Context, req Request) error {
	if err := req.validate(false); err != nil {
		return err
	}
	hosts, err := d.hosts(req)
	if err != nil || len(hosts) == 0 {
		return err
	}

	dir, cleanup, err := d.workspace()
	if err != nil {
		return err
	}
	defer cleanup()

	archive := filepath.Join(dir, "archive.tar.gz")
	d.Log.Info("fetching project", "source", req.Source.Describe())
	if err := req.Source.Archive(ctx, archive); err != nil {
		return err
	}

	err = runner.RunSequential(ctx, hosts, d.Log, func(ctx context.Context, host models.HostSpec) error {
		l, err := d.prepare(ctx, host, req.Release)
		if err != nil {
			return err
		}
		d.Log.Info("unpacking the archive file", "host", host.String(), "dir", l.ReleaseDir())
		pipe := executor.Pipeline{
			Source:  executor.File{Path: archive},
			Host:    host,
			Command: "tar --strip-components 1 -x -z -v -f - -C " + executor.Quote(l.ReleaseDir()),
		}
		if err := pipe.Run(ctx, d.Remote); err != nil {
			return &TransferError{Step: "unpack", Path: l.ReleaseDir(), Err: err}
		}
		return nil
	})
	if err == nil {
		d.Log.Info("deployed successfully", "hosts", len(hosts))
	}
	return err
}
