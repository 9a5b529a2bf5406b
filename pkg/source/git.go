package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Git 直接从 Git 仓库克隆并检出指定提交
// 对象保存在内存中，目标目录只包含工作区文件
type Git struct {
	URL       string
	Token     string
	CommitSHA models.CommitSHA
	Progress  io.Writer
	Log       *slog.Logger
}

func (g *Git) Describe() string {
	return fmt.Sprintf("%s@%s", g.URL, g.CommitSHA.Short())
}

func (g *Git) Extract(ctx context.Context, dir string) error {
	if g.Log != nil {
		g.Log.Info("cloning project", "url", g.URL, "commit", g.CommitSHA.Short())
	}
	opts := &git.CloneOptions{
		URL:        g.URL,
		Progress:   g.Progress,
		NoCheckout: true,
	}
	if g.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "oauth2", Password: g.Token}
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), osfs.New(dir), opts)
	if err != nil {
		return fmt.Errorf("clone %s: %w", g.URL, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(g.CommitSHA.String()), Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", g.CommitSHA, err)
	}
	return nil
}

// Archive 检出后重新打包，与 GitLab 归档一样带一层顶层目录
func (g *Git) Archive(ctx context.Context, path string) error {
	dir, err := os.MkdirTemp("", "gitlab-deploy-git-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := g.Extract(ctx, dir); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	prefix := "project-" + g.CommitSHA.String()
	if err := WriteTarGz(f, dir, prefix, ".git"); err != nil {
		f.Close()
		return fmt.Errorf("pack %s: %w", g.Describe(), err)
	}
	return f.Close()
}
