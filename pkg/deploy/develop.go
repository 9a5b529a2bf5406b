package deploy

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/project"
)

// DevelopRequest 后端开发环境: 在开发机上直接克隆或更新仓库并运行 develop-up.sh
type DevelopRequest struct {
	ProjectName  string
	ProjectID    uint64
	ProjectPath  string
	Reference    string
	SSHURLPrefix string
	Host         models.HostSpec
	// LocalDir 本地已检出的项目，非空时在连接开发机之前先校验 deploy/ 文件
	LocalDir string
}

func (r DevelopRequest) validate() error {
	if err := models.ValidateName("project name", r.ProjectName); err != nil {
		return err
	}
	if err := models.ValidateProjectPath(r.ProjectPath); err != nil {
		return err
	}
	if err := models.ValidateReference(r.Reference); err != nil {
		return err
	}
	return models.ValidateSSHURLPrefix(r.SSHURLPrefix)
}

// RepositoryURL <ssh_url_prefix>/<project_path>.git
func (r DevelopRequest) RepositoryURL() string {
	return fmt.Sprintf("%s/%s.git", strings.TrimRight(r.SSHURLPrefix, "/"), r.ProjectPath)
}

// BackendDevelop 仓库已存在时先执行 develop-down.sh 再拉取，否则克隆
// 最后检查 deploy/ 文件并执行 develop-up.sh
func (d *Deployer) BackendDevelop(ctx context.Context, req DevelopRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	if req.LocalDir != "" {
		if err := project.New(req.LocalDir).CheckDevelop(); err != nil {
			return err
		}
	}
	host := req.Host
	d.Log.Info("deploying to develop host", "host", host.String())

	home, err := executor.GetSSHHome(ctx, d.Remote, host)
	if err != nil {
		return err
	}
	root := path.Join(home, d.Config.ProjectDirectory, fmt.Sprintf("%s-%d", req.ProjectName, req.ProjectID))
	q := executor.Quote(root)
	ref := executor.Quote(req.Reference)

	exist, err := executor.CheckDirectoryExist(ctx, d.Remote, host, path.Join(root, ".git"))
	if err != nil {
		return err
	}
	if exist {
		d.Log.Info("the project exists, trying to pull", "dir", root)
		if _, err := d.checkRemoteProject(ctx, host, root); err != nil {
			return err
		}
		cmd := fmt.Sprintf("cd %s && (bash %s || true) && git checkout %s && git pull origin %s",
			q, executor.Quote(project.Rel(project.DevelopDown)), ref, ref)
		if _, err := d.Remote.Run(ctx, host, cmd); err != nil {
			return fmt.Errorf("cannot pull and check out %q: %w", req.Reference, err)
		}
	} else {
		url := req.RepositoryURL()
		d.Log.Info("the project does not exist, trying to clone", "url", url)
		cmd := fmt.Sprintf("mkdir -p %s && cd %s && git clone --recursive %s . && git checkout %s",
			q, q, executor.Quote(url), ref)
		if _, err := d.Remote.Run(ctx, host, cmd); err != nil {
			return fmt.Errorf("cannot clone %q and check out %q: %w", url, req.Reference, err)
		}
	}

	if _, err := d.checkRemoteProject(ctx, host, root); err != nil {
		return err
	}
	d.Log.Info("running deploy/develop-up.sh", "host", host.String())
	if _, err := d.Remote.Run(ctx, host, fmt.Sprintf("cd %s && bash %s", q, executor.Quote(project.Rel(project.DevelopUpScript)))); err != nil {
		return fmt.Errorf("develop-up failed: %w", err)
	}
	d.Log.Info("deployed successfully", "host", host.String())
	return nil
}

// checkRemoteProject 与本地校验相同的规则，在远程仓库上执行
func (d *Deployer) checkRemoteProject(ctx context.Context, host models.HostSpec, root string) (string, error) {
	for _, name := range []string{project.BuildScript, project.DevelopUpScript, project.DevelopDown} {
		ok, err := executor.CheckFileExist(ctx, d.Remote, host, path.Join(root, project.DeployDir, name))
		if err != nil {
			return "", err
		}
		if !ok {
			return "", &project.ValidationError{File: project.Rel(name), Reason: "cannot be found in the project"}
		}
	}

	content, err := executor.ReadRemoteFile(ctx, d.Remote, host, path.Join(root, project.DeployDir, project.ImageNameFile))
	if err != nil {
		return "", &project.ValidationError{File: project.Rel(project.ImageNameFile), Reason: "cannot be read: " + err.Error()}
	}
	image := strings.TrimSpace(content)
	if err := models.ValidateImageName(image); err != nil {
		return "", &project.ValidationError{File: project.Rel(project.ImageNameFile), Reason: "is not correct"}
	}

	compose, err := executor.ReadRemoteFile(ctx, d.Remote, host, path.Join(root, project.DeployDir, project.ComposeFile))
	if err != nil {
		return "", &project.ValidationError{File: project.Rel(project.ComposeFile), Reason: "cannot be read: " + err.Error()}
	}
	if err := project.CheckCompose(compose, image); err != nil {
		return "", &project.ValidationError{File: project.Rel(project.ComposeFile), Reason: err.Error()}
	}
	return image, nil
}

// FrontendDevelop 与前端部署相同，但只针对一台开发机，不读取阶段文件
func (d *Deployer) FrontendDevelop(ctx context.Context, req Request, host models.HostSpec) error {
	if err := req.validate(true); err != nil {
		return err
	}
	return d.frontend(ctx, req, []models.HostSpec{host})
}
