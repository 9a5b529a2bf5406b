package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wentf9/gitlab-deploy/pkg/control"
	"github.com/wentf9/gitlab-deploy/pkg/deploy"
	"github.com/wentf9/gitlab-deploy/pkg/models"
)

type BackendDeployOptions struct {
	ReleaseOptions
	SourceOptions
	BuildTarget string
}

func NewCmdBackendDeploy() *cobra.Command {
	o := &BackendDeployOptions{}
	cmd := &cobra.Command{
		Use:   "backend-deploy <phase> [build-target]",
		Short: "构建 docker 镜像并部署到阶段内的所有主机",
		Long: `构建 docker 镜像并部署到阶段内的所有主机。
项目中需要 deploy/build.sh、deploy/image-name.txt 和 deploy/docker-compose.yml,
build.sh 需要生成 deploy/<image-name>.tar.zst。
用法示例:
gitlab-deploy backend-deploy production
gitlab-deploy backend-deploy testing staging --sha $CI_COMMIT_SHA`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	o.ReleaseOptions.AddFlags(cmd)
	o.SourceOptions.AddFlags(cmd)
	return cmd
}

func (o *BackendDeployOptions) Complete(cmd *cobra.Command, args []string) {
	o.ReleaseOptions.Complete(args[0])
	o.SourceOptions.Complete()
	if len(args) > 1 {
		o.BuildTarget = args[1]
	}
}

func (o *BackendDeployOptions) Validate() error {
	return o.SourceOptions.Validate()
}

func (o *BackendDeployOptions) Run(cmd *cobra.Command) error {
	release, err := o.Release()
	if err != nil {
		return err
	}
	rt, err := newSession("bash", "docker")
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Deployer().Backend(cmd.Context(), deploy.Request{
		Phase:       o.Phase,
		Release:     release,
		BuildTarget: o.BuildTarget,
		Source:      o.Source(release, rt.Log),
	})
}

type BackendControlOptions struct {
	ReleaseOptions
	Command control.Command
	command string
}

func NewCmdBackendControl() *cobra.Command {
	o := &BackendControlOptions{}
	cmd := &cobra.Command{
		Use:   "backend-control <phase> <up|stop|down|logs|down_up>",
		Short: "对已部署的后端版本执行 docker-compose 命令",
		Long: `对已部署的后端版本执行 docker-compose 命令。
start/up 启动并跟踪一段时间日志, stop 停止, down 停止并删除容器,
log/logs 查看日志, down_up/restart 先关闭上一次启动的版本再启动当前版本。
用法示例:
gitlab-deploy backend-control production up
gitlab-deploy backend-control production restart --ref v1.2.0 --sha <sha>`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	o.ReleaseOptions.AddFlags(cmd)
	return cmd
}

func (o *BackendControlOptions) Complete(cmd *cobra.Command, args []string) {
	o.ReleaseOptions.Complete(args[0])
	o.command = args[1]
}

func (o *BackendControlOptions) Validate() error {
	c, err := control.ParseCommand(o.command)
	if err != nil {
		return err
	}
	o.Command = c
	return nil
}

func (o *BackendControlOptions) Run(cmd *cobra.Command) error {
	release, err := o.Release()
	if err != nil {
		return err
	}
	rt, err := newSession()
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Controller().Backend(cmd.Context(), control.Request{Phase: o.Phase, Release: release}, o.Command)
}

type BackendDevelopOptions struct {
	ProjectID    string
	ProjectName  string
	ProjectPath  string
	Reference    string
	SSHURLPrefix string
	Host         string
	ProjectDir   string
}

func NewCmdBackendDevelop() *cobra.Command {
	o := &BackendDevelopOptions{}
	cmd := &cobra.Command{
		Use:   "backend-develop",
		Short: "在开发机上克隆或更新仓库并执行 deploy/develop-up.sh",
		Long: `在开发机上克隆或更新仓库并执行 deploy/develop-up.sh。
仓库已存在时先执行 deploy/develop-down.sh, 然后切换并拉取分支。
开发机由 --host 或 $` + envDevelopHost + ` 指定, 格式 user@host[:port]。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.Complete(cmd, args)
			if err := o.Validate(); err != nil {
				return err
			}
			return o.Run(cmd)
		},
	}
	cmd.Flags().StringVar(&o.ProjectID, "project-id", "", "项目 id (默认 $"+envProjectID+")")
	cmd.Flags().StringVar(&o.ProjectName, "project-name", "", "项目名称 (默认 $"+envProjectName+")")
	cmd.Flags().StringVar(&o.ProjectPath, "project-path", "", "项目路径 group/name (默认 $"+envProjectPath+")")
	cmd.Flags().StringVar(&o.Reference, "branch", "", "分支名 (默认 $"+envCommitBranch+")")
	cmd.Flags().StringVar(&o.SSHURLPrefix, "ssh-url", "", "GitLab SSH 地址前缀 (默认 $"+envSSHURLPrefix+")")
	cmd.Flags().StringVarP(&o.Host, "host", "H", "", "开发机 user@host[:port] (默认 $"+envDevelopHost+")")
	cmd.Flags().StringVar(&o.ProjectDir, "project-dir", "", "本地检出的项目目录,用于预先检查 deploy/ 文件 (默认 $"+envProjectDir+")")
	return cmd
}

func (o *BackendDevelopOptions) Complete(cmd *cobra.Command, args []string) {
	o.ProjectID = envOr(o.ProjectID, envProjectID)
	o.ProjectName = envOr(o.ProjectName, envProjectName)
	o.ProjectPath = envOr(o.ProjectPath, envProjectPath)
	o.Reference = envOr(o.Reference, envCommitBranch)
	o.SSHURLPrefix = envOr(o.SSHURLPrefix, envSSHURLPrefix)
	o.Host = envOr(o.Host, envDevelopHost)
	o.ProjectDir = envOr(o.ProjectDir, envProjectDir)
}

func (o *BackendDevelopOptions) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("未指定开发机, 请使用 --host 或设置 $%s", envDevelopHost)
	}
	if o.SSHURLPrefix == "" {
		return fmt.Errorf("未指定 GitLab SSH 地址, 请使用 --ssh-url 或设置 $%s", envSSHURLPrefix)
	}
	return nil
}

func (o *BackendDevelopOptions) Run(cmd *cobra.Command) error {
	id, err := parseProjectID(o.ProjectID)
	if err != nil {
		return err
	}
	host, err := models.ParseHostSpec(o.Host)
	if err != nil {
		return fmt.Errorf("开发机地址不正确: %w", err)
	}
	rt, err := newSession()
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Deployer().BackendDevelop(cmd.Context(), deploy.DevelopRequest{
		ProjectName:  o.ProjectName,
		ProjectID:    id,
		ProjectPath:  o.ProjectPath,
		Reference:    o.Reference,
		SSHURLPrefix: o.SSHURLPrefix,
		Host:         host,
		LocalDir:     o.ProjectDir,
	})
}

func init() {
	rootCmd.AddCommand(NewCmdBackendDeploy())
	rootCmd.AddCommand(NewCmdBackendControl())
	rootCmd.AddCommand(NewCmdBackendDevelop())
}
