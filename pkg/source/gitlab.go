package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// GitLab 通过 /projects/<id>/repository/archive 接口下载快照
type GitLab struct {
	APIURLPrefix string
	Token        string
	ProjectID    uint64
	CommitSHA    models.CommitSHA
	Client       *http.Client
	Log          *slog.Logger
}

// NewHTTPClient insecure 对应 wget --no-check-certificate
func NewHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (g *GitLab) URL() string {
	return fmt.Sprintf("%s/projects/%d/repository/archive?sha=%s",
		strings.TrimRight(g.APIURLPrefix, "/"), g.ProjectID, url.QueryEscape(g.CommitSHA.String()))
}

func (g *GitLab) Describe() string {
	return g.URL()
}

func (g *GitLab) open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", g.Token)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	if g.Log != nil {
		g.Log.Info("fetching project", "url", g.URL())
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", g.URL(), err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s %s", g.URL(), resp.Status, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

func (g *GitLab) Extract(ctx context.Context, dir string) error {
	body, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	counter := &countingReader{r: body}
	zr, err := gzip.NewReader(counter)
	if err != nil {
		return fmt.Errorf("fetched archive is not gzip: %w", err)
	}
	defer zr.Close()
	if err := ExtractTar(zr, dir, 1); err != nil {
		return err
	}
	if g.Log != nil {
		g.Log.Info("fetched successfully", "size", humanize.Bytes(uint64(counter.n)))
	}
	return nil
}

func (g *GitLab) Archive(ctx context.Context, path string) error {
	body, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save archive %s: %w", path, err)
	}
	if g.Log != nil {
		g.Log.Info("fetched successfully", "size", humanize.Bytes(uint64(n)))
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
