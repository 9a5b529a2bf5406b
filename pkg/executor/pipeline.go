package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Stage 管道的本地一端，把数据写入 w
type Stage interface {
	Name() string
	WriteTo(ctx context.Context, w io.Writer) error
}

// LocalProcess 本地子进程，标准输出接入管道
type LocalProcess struct {
	Dir  string
	Argv []string
}

func (p LocalProcess) Name() string {
	return QuoteAll(p.Argv...)
}

func (p LocalProcess) WriteTo(ctx context.Context, w io.Writer) error {
	if len(p.Argv) == 0 {
		return errors.New("empty command")
	}
	c := exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	c.Dir = p.Dir
	c.Stdout = w
	c.Stderr = os.Stderr
	err := c.Run()
	_, err = collect(err, "local", p.Name(), nil, nil)
	return err
}

// ZstdFile 在进程内解压 .zst 文件
type ZstdFile struct {
	Path string
}

func (z ZstdFile) Name() string {
	return "zstd -d " + z.Path
}

func (z ZstdFile) WriteTo(ctx context.Context, w io.Writer) error {
	f, err := os.Open(z.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open zstd stream %s: %w", z.Path, err)
	}
	defer dec.Close()

	if _, err := dec.WriteTo(w); err != nil {
		return fmt.Errorf("decompress %s: %w", z.Path, err)
	}
	return nil
}

// File 原样输出本地文件
type File struct {
	Path string
}

func (f File) Name() string {
	return "cat " + f.Path
}

func (f File) WriteTo(ctx context.Context, w io.Writer) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return err
}

// Pipeline 两段式管道: 本地 Source 的输出作为远程 Command 的标准输入
type Pipeline struct {
	Source  Stage
	Host    models.HostSpec
	Command string
}

// Run 任意一端失败都会关闭管道，使另一端尽快退出
func (p Pipeline) Run(ctx context.Context, r Remote, opts ...RunOption) error {
	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := p.Source.WriteTo(ctx, pw)
		pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Source.Name(), err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := r.Run(ctx, p.Host, p.Command, append(opts, WithStdin(pr))...)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		pr.CloseWithError(io.ErrClosedPipe)
		return nil
	})
	return g.Wait()
}
