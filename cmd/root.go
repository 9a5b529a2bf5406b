package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wentf9/gitlab-deploy/cmd/version"
	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/logger"
)

var (
	configPath string
	logLevel   string
	// cfg 在 PersistentPreRunE 中加载
	cfg *config.Configuration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gitlab-deploy [command] [flags]",
	Short: "gitlab-deploy 在 GitLab CI 中构建项目并通过 SSH 部署到各阶段的主机",
	Long: `gitlab-deploy 在 GitLab CI 中构建项目并通过 SSH 部署到各阶段的主机。
主机由 $HOME/.gitlab-deploy/phases/<phase> 中的阶段文件按项目 id 决定,
部署后可以用 *-control 命令对发布版本执行 up/stop/down/logs 等操作。
大部分参数在未指定时会读取 GitLab CI 的环境变量。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			version.PrintFullVersion(cmd.OutOrStdout())
			return
		}
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			logger.Logger.SetLogLevel(logLevel)
		}
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if debugFlag {
			logger.Logger.SetLogLevel("debug")
			logger.Logger.Debug("调试模式已开启")
		}
		loaded, err := config.NewDefaultStore(configPath).Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.ErrorLines(logger.Logger.Logger, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")
	rootCmd.PersistentFlags().Bool("debug", false, "开启调试模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "配置文件路径")
}
