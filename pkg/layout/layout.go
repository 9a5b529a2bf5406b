// Package layout 计算远程主机上某个发布版本的目录结构
//
//	<home>/<project_directory>/<name>-<id>/
//	  control.log
//	  last-up
//	  <ref>-<short_sha>/
//	    docker-compose.yml
//	    <artifact>.tar.zst
package layout

import (
	"fmt"
	"path"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

const (
	ControlLogName  = "control.log"
	LastUpName      = "last-up"
	ComposeFileName = "docker-compose.yml"
	ArtifactSuffix  = ".tar.zst"
)

// Release 一个发布版本的身份信息
type Release struct {
	ProjectName   string
	ProjectID     uint64
	ReferenceName string
	CommitSHA     models.CommitSHA
}

// Validate 校验会嵌入远程路径的各个字段
func (r Release) Validate() error {
	if err := models.ValidateName("project name", r.ProjectName); err != nil {
		return err
	}
	if err := models.ValidateName("reference name", r.ReferenceName); err != nil {
		return err
	}
	if _, err := models.ParseCommitSHA(string(r.CommitSHA)); err != nil {
		return err
	}
	return nil
}

// Name 形如 <ref>-<short_sha>，同时也是 last-up 的内容
func (r Release) Name() string {
	return r.ReferenceName + "-" + r.CommitSHA.Short()
}

// ProjectDirName 形如 <name>-<id>
func (r Release) ProjectDirName() string {
	return fmt.Sprintf("%s-%d", r.ProjectName, r.ProjectID)
}

// Layout 纯计算，不做任何 IO
type Layout struct {
	sshHome          string
	projectDirectory string
	release          Release
}

func New(sshHome, projectDirectory string, release Release) Layout {
	return Layout{sshHome: sshHome, projectDirectory: projectDirectory, release: release}
}

func (l Layout) Release() Release { return l.release }

func (l Layout) Root() string {
	return path.Join(l.sshHome, l.projectDirectory)
}

func (l Layout) ProjectDir() string {
	return path.Join(l.Root(), l.release.ProjectDirName())
}

func (l Layout) ReleaseDir() string {
	return path.Join(l.ProjectDir(), l.release.Name())
}

func (l Layout) ReleaseName() string {
	return l.release.Name()
}

// ReleaseDirOf 同一项目下另一个发布版本的目录，DownAndUp 关闭旧版本时使用
func (l Layout) ReleaseDirOf(releaseName string) string {
	return path.Join(l.ProjectDir(), releaseName)
}

// ControlLog 与 LastUp 使用 release/.. 的写法，和远程命令保持一致
func (l Layout) ControlLog() string {
	return l.ReleaseDir() + "/../" + ControlLogName
}

func (l Layout) LastUp() string {
	return l.ReleaseDir() + "/../" + LastUpName
}

func (l Layout) ComposeFile() string {
	return path.Join(l.ReleaseDir(), ComposeFileName)
}

func (l Layout) Artifact(name string) string {
	return path.Join(l.ReleaseDir(), name+ArtifactSuffix)
}

// HTMLDir 前端静态文件最终生效的目录
func (l Layout) HTMLDir(serviceDirectory, publicName string) string {
	return path.Join(l.sshHome, serviceDirectory, publicName, "html")
}
