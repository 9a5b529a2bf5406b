package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wentf9/gitlab-deploy/pkg/control"
	"github.com/wentf9/gitlab-deploy/pkg/deploy"
	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// 前端构建脚本通常用 tar 和 zstd 打包
var frontendTools = []string{"bash", "tar", "zstd"}

type FrontendDeployOptions struct {
	ReleaseOptions
	SourceOptions
	BuildTarget string
}

func NewCmdFrontendDeploy() *cobra.Command {
	o := &FrontendDeployOptions{}
	cmd := &cobra.Command{
		Use:   "frontend-deploy <phase> <build-target>",
		Short: "构建前端静态文件并替换阶段内所有主机的 html 目录",
		Long: `构建前端静态文件并替换阶段内所有主机的 html 目录。
项目中需要 deploy/build.sh 和 deploy/public-name.txt,
build.sh 需要生成 deploy/<public-name>.tar.zst。
用法示例:
gitlab-deploy frontend-deploy production prod`,
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
	o.SourceOptions.AddFlags(cmd)
	return cmd
}

func (o *FrontendDeployOptions) Complete(cmd *cobra.Command, args []string) {
	o.ReleaseOptions.Complete(args[0])
	o.SourceOptions.Complete()
	o.BuildTarget = args[1]
}

func (o *FrontendDeployOptions) Validate() error {
	if err := models.ValidateBuildTarget(o.BuildTarget); err != nil {
		return err
	}
	return o.SourceOptions.Validate()
}

func (o *FrontendDeployOptions) Run(cmd *cobra.Command) error {
	release, err := o.Release()
	if err != nil {
		return err
	}
	rt, err := newSession(frontendTools...)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Deployer().Frontend(cmd.Context(), deploy.Request{
		Phase:       o.Phase,
		Release:     release,
		BuildTarget: o.BuildTarget,
		Source:      o.Source(release, rt.Log),
	})
}

type FrontendControlOptions struct {
	ReleaseOptions
}

func NewCmdFrontendControl() *cobra.Command {
	o := &FrontendControlOptions{}
	cmd := &cobra.Command{
		Use:   "frontend-control <phase>",
		Short: "重新应用已部署的前端版本",
		Long: `重新应用已部署的前端版本, 用于回滚到之前部署过的版本。
用法示例:
gitlab-deploy frontend-control production --ref v1.1.0 --sha <sha>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.ReleaseOptions.Complete(args[0])
			release, err := o.Release()
			if err != nil {
				return err
			}
			rt, err := newSession()
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.Controller().Frontend(cmd.Context(), control.Request{Phase: o.Phase, Release: release})
		},
	}
	o.ReleaseOptions.AddFlags(cmd)
	return cmd
}

type FrontendDevelopOptions struct {
	ReleaseOptions
	SourceOptions
	BuildTarget string
	Host        string
}

func NewCmdFrontendDevelop() *cobra.Command {
	o := &FrontendDevelopOptions{}
	cmd := &cobra.Command{
		Use:   "frontend-develop <build-target>",
		Short: "构建前端静态文件并部署到开发机",
		Long: `构建前端静态文件并部署到开发机, 不读取阶段文件。
开发机由 --host 或 $` + envDevelopHost + ` 指定, 格式 user@host[:port]。`,
		Args: cobra.ExactArgs(1),
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
	cmd.Flags().StringVarP(&o.Host, "host", "H", "", "开发机 user@host[:port] (默认 $"+envDevelopHost+")")
	return cmd
}

func (o *FrontendDevelopOptions) Complete(cmd *cobra.Command, args []string) {
	o.ReleaseOptions.Complete("develop")
	o.SourceOptions.Complete()
	o.BuildTarget = args[0]
	o.Host = envOr(o.Host, envDevelopHost)
}

func (o *FrontendDevelopOptions) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("未指定开发机, 请使用 --host 或设置 $%s", envDevelopHost)
	}
	if err := models.ValidateBuildTarget(o.BuildTarget); err != nil {
		return err
	}
	return o.SourceOptions.Validate()
}

func (o *FrontendDevelopOptions) Run(cmd *cobra.Command) error {
	release, err := o.Release()
	if err != nil {
		return err
	}
	host, err := models.ParseHostSpec(o.Host)
	if err != nil {
		return fmt.Errorf("开发机地址不正确: %w", err)
	}
	rt, err := newSession(frontendTools...)
	if err != nil {
		return err
	}
	defer rt.Close()
	return rt.Deployer().FrontendDevelop(cmd.Context(), deploy.Request{
		Phase:       o.Phase,
		Release:     release,
		BuildTarget: o.BuildTarget,
		Source:      o.Source(release, rt.Log),
	}, host)
}

func init() {
	rootCmd.AddCommand(NewCmdFrontendDeploy())
	rootCmd.AddCommand(NewCmdFrontendControl())
	rootCmd.AddCommand(NewCmdFrontendDevelop())
}
