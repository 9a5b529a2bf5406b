package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wentf9/gitlab-deploy/pkg/control"
	"github.com/wentf9/gitlab-deploy/pkg/deploy"
)

type SimpleDeployOptions struct {
	ReleaseOptions
	SourceOptions
}

func NewCmdSimpleDeploy() *cobra.Command {
	o := &SimpleDeployOptions{}
	cmd := &cobra.Command{
		Use:   "simple-deploy <phase>",
		Short: "不构建, 把项目归档直接解压到阶段内所有主机的发布目录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.ReleaseOptions.Complete(args[0])
			o.SourceOptions.Complete()
			if err := o.SourceOptions.Validate(); err != nil {
				return err
			}
			release, err := o.Release()
			if err != nil {
				return err
			}
			rt, err := newSession()
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.Deployer().Simple(cmd.Context(), deploy.Request{
				Phase:   o.Phase,
				Release: release,
				Source:  o.Source(release, rt.Log),
			})
		},
	}
	o.ReleaseOptions.AddFlags(cmd)
	o.SourceOptions.AddFlags(cmd)
	return cmd
}

type SimpleControlOptions struct {
	ReleaseOptions
	Inject bool
}

func NewCmdSimpleControl() *cobra.Command {
	o := &SimpleControlOptions{}
	cmd := &cobra.Command{
		Use:   "simple-control <phase> [flags] -- <command> [args...]",
		Short: "在阶段内所有主机上执行自定义命令",
		Long: `在阶段内所有主机上执行自定义命令, 成功后写入 control.log。
使用 --inject 时把发布目录插入到命令的第一个参数之后,
命令以 sudo 开头时插入到第二个参数之后。
用法示例:
gitlab-deploy simple-control production -- systemctl restart app
gitlab-deploy simple-control production --inject -- sudo /opt/bin/activate --force`,
		Args: cobra.MinimumNArgs(2),
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
			return rt.Controller().Simple(cmd.Context(), control.Request{Phase: o.Phase, Release: release}, args[1:], o.Inject)
		},
	}
	o.ReleaseOptions.AddFlags(cmd)
	cmd.Flags().BoolVar(&o.Inject, "inject", false, "把发布目录作为参数插入命令")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdSimpleDeploy())
	rootCmd.AddCommand(NewCmdSimpleControl())
}
