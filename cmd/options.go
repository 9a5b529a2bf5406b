package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/control"
	"github.com/wentf9/gitlab-deploy/pkg/deploy"
	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
	"github.com/wentf9/gitlab-deploy/pkg/logger"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/phase"
	"github.com/wentf9/gitlab-deploy/pkg/source"
)

// GitLab CI 提供的环境变量
const (
	envProjectID     = "CI_PROJECT_ID"
	envCommitSHA     = "CI_COMMIT_SHA"
	envProjectName   = "CI_PROJECT_NAME"
	envReferenceName = "CI_COMMIT_REF_NAME"
	envProjectPath   = "CI_PROJECT_PATH"
	envProjectDir    = "CI_PROJECT_DIR"
	envCommitBranch  = "CI_COMMIT_BRANCH"
	envAPIURLPrefix  = "GITLAB_API_URL_PREFIX"
	envAPIToken      = "GITLAB_API_TOKEN"
	envSSHURLPrefix  = "GITLAB_SSH_URL_PREFIX"
	envDevelopHost   = "DEVELOP_SSH_HOST"
)

// envOr 参数未指定时读取环境变量
func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

// ReleaseOptions 定位一个发布版本所需的参数
type ReleaseOptions struct {
	Phase       string
	ProjectID   string
	ProjectName string
	Reference   string
	CommitSHA   string
}

func (o *ReleaseOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.ProjectID, "project-id", "", "项目 id (默认 $"+envProjectID+")")
	cmd.Flags().StringVar(&o.ProjectName, "project-name", "", "项目名称 (默认 $"+envProjectName+")")
	cmd.Flags().StringVar(&o.Reference, "ref", "", "分支或标签名 (默认 $"+envReferenceName+")")
	cmd.Flags().StringVar(&o.CommitSHA, "sha", "", "完整的提交 sha (默认 $"+envCommitSHA+")")
}

func (o *ReleaseOptions) Complete(phaseName string) {
	o.Phase = phaseName
	o.ProjectID = envOr(o.ProjectID, envProjectID)
	o.ProjectName = envOr(o.ProjectName, envProjectName)
	o.Reference = envOr(o.Reference, envReferenceName)
	o.CommitSHA = envOr(o.CommitSHA, envCommitSHA)
}

// Release 校验参数并组装发布版本
func (o *ReleaseOptions) Release() (layout.Release, error) {
	if err := models.ValidateName("phase", o.Phase); err != nil {
		return layout.Release{}, err
	}
	id, err := parseProjectID(o.ProjectID)
	if err != nil {
		return layout.Release{}, err
	}
	sha, err := models.ParseCommitSHA(o.CommitSHA)
	if err != nil {
		return layout.Release{}, fmt.Errorf("提交 sha 不正确: %w", err)
	}
	r := layout.Release{ProjectName: o.ProjectName, ProjectID: id, ReferenceName: o.Reference, CommitSHA: sha}
	if err := r.Validate(); err != nil {
		return layout.Release{}, err
	}
	return r, nil
}

func parseProjectID(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("未指定项目 id, 请使用 --project-id 或设置 $%s", envProjectID)
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("项目 id %q 不正确: %w", s, err)
	}
	return id, nil
}

// SourceOptions 项目快照的来源，默认为 GitLab 归档接口
type SourceOptions struct {
	APIURLPrefix string
	Token        string
	GitURL       string
}

func (o *SourceOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.APIURLPrefix, "api-url", "", "GitLab API 地址前缀 (默认 $"+envAPIURLPrefix+")")
	cmd.Flags().StringVar(&o.Token, "token", "", "GitLab API token (默认 $"+envAPIToken+")")
	cmd.Flags().StringVar(&o.GitURL, "git-url", "", "直接从 Git 仓库克隆,代替 GitLab 归档接口")
}

func (o *SourceOptions) Complete() {
	o.APIURLPrefix = envOr(o.APIURLPrefix, envAPIURLPrefix)
	o.Token = envOr(o.Token, envAPIToken)
}

func (o *SourceOptions) Validate() error {
	if o.GitURL != "" {
		return nil
	}
	if o.APIURLPrefix == "" {
		return fmt.Errorf("未指定 GitLab API 地址, 请使用 --api-url 或设置 $%s", envAPIURLPrefix)
	}
	if o.Token == "" {
		return fmt.Errorf("未指定 GitLab API token, 请使用 --token 或设置 $%s", envAPIToken)
	}
	return nil
}

func (o *SourceOptions) Source(r layout.Release, log *slog.Logger) source.Source {
	if o.GitURL != "" {
		g := &source.Git{URL: o.GitURL, Token: o.Token, CommitSHA: r.CommitSHA, Log: log}
		if term.IsTerminal(int(os.Stderr.Fd())) {
			g.Progress = os.Stderr
		}
		return g
	}
	return &source.GitLab{
		APIURLPrefix: o.APIURLPrefix,
		Token:        o.Token,
		ProjectID:    r.ProjectID,
		CommitSHA:    r.CommitSHA,
		Client:       source.NewHTTPClient(cfg.GitLab.Timeout, cfg.GitLab.InsecureSkipVerify),
		Log:          log,
	}
}

// session 由配置得到的执行环境
type session struct {
	Remote   executor.Remote
	Local    *executor.LocalExecutor
	Resolver *phase.Resolver
	Log      *slog.Logger
	close    func()
}

// newSession 检查本地工具并按配置创建远程执行器
func newSession(tools ...string) (*session, error) {
	log := logger.Logger.Logger
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("无法获取本地 $HOME: %w", err)
	}
	rt := &session{
		Local:    executor.NewLocalExecutor(cfg.CommandTimeout, log),
		Resolver: phase.NewResolver(home, cfg.PhaseDirectory),
		Log:      log,
		close:    func() {},
	}

	switch cfg.Transport {
	case config.TransportNative:
		opts, err := cfg.SSHOptions()
		if err != nil {
			return nil, err
		}
		native := executor.NewNative(opts, cfg.CommandTimeout, log)
		rt.Remote = native
		rt.close = native.Close
	default:
		tools = append(tools, "ssh", "scp")
		rt.Remote = executor.NewOpenSSH(cfg.CommandTimeout, log)
	}
	if err := rt.Local.Check(tools...); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *session) Close() {
	rt.close()
}

func (rt *session) Deployer() *deploy.Deployer {
	return deploy.New(rt.Remote, rt.Local, rt.Resolver, cfg, rt.Log)
}

func (rt *session) Controller() *control.Controller {
	return control.New(rt.Remote, rt.Resolver, cfg, rt.Log)
}
