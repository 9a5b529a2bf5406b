package cmd

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/wentf9/gitlab-deploy/pkg/phase"
)

func NewCmdPhase() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "查看阶段文件",
	}
	cmd.AddCommand(NewCmdPhaseHosts())
	return cmd
}

func NewCmdPhaseHosts() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "hosts <phase>",
		Short: "打印项目在阶段中对应的主机",
		Long: `打印项目在阶段中对应的主机, 每行一个, 用于检查阶段文件。
用法示例:
gitlab-deploy phase hosts production --project-id 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(envOr(projectID, envProjectID))
			if err != nil {
				return err
			}
			home, err := homedir.Dir()
			if err != nil {
				return err
			}
			resolver := phase.NewResolver(home, cfg.PhaseDirectory)
			hosts, err := resolver.Resolve(args[0], id)
			if err != nil {
				return err
			}
			for _, h := range hosts.Strings() {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "项目 id (默认 $"+envProjectID+")")
	return cmd
}

func init() {
	rootCmd.AddCommand(NewCmdPhase())
}
