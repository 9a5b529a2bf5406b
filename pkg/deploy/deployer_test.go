package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/executor/executortest"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
	"github.com/wentf9/gitlab-deploy/pkg/logger"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/phase"
	"github.com/wentf9/gitlab-deploy/pkg/project"
)

const (
	sha        = models.CommitSHA("abcdef0123456789abcdef0123456789abcdef01")
	releaseDir = "/home/deploy/gitlab-deploy/projects/shop-42/main-abcdef01"
)

var (
	web1 = models.HostSpec{User: "deploy", Host: "web1", Port: 22}
	web2 = models.HostSpec{User: "deploy", Host: "web2", Port: 2200}
)

type staticResolver struct{ hosts phase.HostSet }

func (s staticResolver) Resolve(string, uint64) (phase.HostSet, error) { return s.hosts, nil }

// fakeSource 把 files 写入目标目录，Archive 写出固定内容
type fakeSource struct {
	files   map[string]string
	fetched int
}

func (f *fakeSource) Describe() string { return "fake" }

func (f *fakeSource) Extract(ctx context.Context, dir string) error {
	f.fetched++
	for name, content := range f.files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Archive(ctx context.Context, path string) error {
	f.fetched++
	return os.WriteFile(path, []byte("raw archive"), 0o644)
}

// fakeLocal 模拟 build.sh，产出 zstd 压缩的产物
type fakeLocal struct {
	artifact string
	payload  []byte
	builds   [][]string
	tools    []string
	err      error
}

func (f *fakeLocal) Run(ctx context.Context, dir string, argv []string, env ...string) error {
	f.builds = append(f.builds, argv)
	if f.err != nil {
		return f.err
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	enc.Write(f.payload)
	enc.Close()
	return os.WriteFile(filepath.Join(dir, "deploy", f.artifact+".tar.zst"), buf.Bytes(), 0o644)
}

// Check 只有 tools 中列出的工具视为已安装
func (f *fakeLocal) Check(tools ...string) error {
	for _, tool := range tools {
		if !slices.Contains(f.tools, tool) {
			return fmt.Errorf("%s not found", tool)
		}
	}
	return nil
}

func newDeployer(remote *executortest.Remote, local *fakeLocal, hosts ...models.HostSpec) *Deployer {
	d := New(remote, local, staticResolver{hosts: hosts}, config.Default(), logger.Discard())
	d.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func request(src *fakeSource, target string) Request {
	return Request{
		Phase:       "prod",
		Release:     layout.Release{ProjectName: "shop", ProjectID: 42, ReferenceName: "main", CommitSHA: sha},
		BuildTarget: target,
		Source:      src,
	}
}

const compose = "services:\n  api:\n    image: shop-api\n"

func backendSource(image string) *fakeSource {
	return &fakeSource{files: map[string]string{
		"deploy/build.sh":           "#!/bin/bash\n",
		"deploy/image-name.txt":     image + "\n",
		"deploy/docker-compose.yml": compose,
	}}
}

func TestBackendDeploy(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{artifact: "shop-api", payload: []byte("docker image tarball")}
	src := backendSource("shop-api")

	require.NoError(t, newDeployer(remote, local, web1, web2).Backend(context.Background(), request(src, "")))

	assert.Equal(t, 1, src.fetched, "artifact is acquired once for all hosts")
	require.Len(t, local.builds, 1)
	assert.Equal(t, []string{"bash", "deploy/build.sh"}, local.builds[0])

	calls := remote.Calls()
	var seq []string
	for _, c := range calls {
		if c.Copy != "" {
			seq = append(seq, c.Host.Host+" copy "+c.Copy[strings.Index(c.Copy, " -> ")+4:])
			continue
		}
		seq = append(seq, c.Host.Host+" "+c.Command)
	}
	assert.Equal(t, []string{
		"web1 echo $HOME",
		"web1 mkdir -p " + releaseDir,
		"web1 cat - > " + releaseDir + "/docker-compose.yml",
		"web1 copy " + releaseDir + "/shop-api.tar.zst",
		"web1 docker image load",
		"web2 echo $HOME",
		"web2 mkdir -p " + releaseDir,
		"web2 cat - > " + releaseDir + "/docker-compose.yml",
		"web2 copy " + releaseDir + "/shop-api.tar.zst",
		"web2 docker image load",
	}, seq)

	composeCall, _ := remote.Find("cat - >")
	assert.Equal(t, "services:\n  api:\n    image: shop-api:abcdef01\n", composeCall.Stdin)
	load, _ := remote.Find("docker image load")
	assert.Equal(t, "docker image tarball", load.Stdin)
}

func TestDecompressStage(t *testing.T) {
	d := newDeployer(executortest.New(), &fakeLocal{})
	assert.Equal(t, executor.ZstdFile{Path: "/tmp/api.tar.zst"}, d.decompressStage("/tmp/api.tar.zst"))

	d = newDeployer(executortest.New(), &fakeLocal{tools: []string{"zstd"}})
	assert.Equal(t, executor.LocalProcess{Argv: []string{"zstd", "-T0", "-d", "-c", "-q", "/tmp/api.tar.zst"}}, d.decompressStage("/tmp/api.tar.zst"))
}

func TestBackendDeployImageMismatchTouchesNoHost(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{artifact: "other"}
	err := newDeployer(remote, local, web1).Backend(context.Background(), request(backendSource("other"), ""))

	var ve *project.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, remote.Calls())
	assert.Empty(t, local.builds)
}

func TestBackendDeployNoHosts(t *testing.T) {
	remote := executortest.New()
	src := backendSource("shop-api")
	require.NoError(t, newDeployer(remote, &fakeLocal{}).Backend(context.Background(), request(src, "")))
	assert.Zero(t, src.fetched)
	assert.Empty(t, remote.Calls())
}

func TestBackendDeployStopsAtFirstFailedHost(t *testing.T) {
	remote := executortest.New().On("docker image load", executortest.Response{ExitCode: 1})
	local := &fakeLocal{artifact: "shop-api", payload: []byte("img")}
	err := newDeployer(remote, local, web1, web2).Backend(context.Background(), request(backendSource("shop-api"), ""))

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "load docker image", te.Step)
	for _, c := range remote.Calls() {
		assert.Equal(t, web1, c.Host)
	}
}

func TestBackendDeployCopyFailure(t *testing.T) {
	remote := executortest.New().FailCopy(errors.New("scp: connection refused"))
	local := &fakeLocal{artifact: "shop-api", payload: []byte("img")}
	err := newDeployer(remote, local, web1).Backend(context.Background(), request(backendSource("shop-api"), ""))

	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "copy", te.Step)
	_, loaded := remote.Find("docker image load")
	assert.False(t, loaded)
}

func TestBackendDeployBuildFailure(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{err: errors.New("exit 2")}
	err := newDeployer(remote, local, web1).Backend(context.Background(), request(backendSource("shop-api"), "prod"))
	assert.ErrorContains(t, err, "build failed")
	assert.Empty(t, remote.Calls())
	assert.Equal(t, []string{"bash", "deploy/build.sh", "prod"}, local.builds[0])
}

func frontendSource() *fakeSource {
	return &fakeSource{files: map[string]string{
		"deploy/build.sh":        "#!/bin/bash\n",
		"deploy/public-name.txt": "shop\n",
	}}
}

func TestFrontendDeploy(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{artifact: "shop", payload: []byte("static files")}
	require.NoError(t, newDeployer(remote, local, web1).Frontend(context.Background(), request(frontendSource(), "prod")))

	cmds := remote.Commands()
	require.Len(t, cmds, 3)
	assert.Equal(t, "mkdir -p "+releaseDir, cmds[0])
	assert.True(t, strings.HasPrefix(cmds[1], "cd "+releaseDir+" && rm -rf public && mkdir public"))
	assert.Contains(t, cmds[1], "zstd -T0 -d -c "+releaseDir+"/shop.tar.zst")
	assert.Contains(t, cmds[1], "cp -r public /home/deploy/gitlab-deploy/services/shop/html")
	assert.Equal(t, "ls "+releaseDir, cmds[2])

	copyCall, ok := remote.Find("shop.tar.zst")
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(copyCall.Copy, " -> "+releaseDir+"/shop.tar.zst"))
}

func TestFrontendDeployRequiresTarget(t *testing.T) {
	remote := executortest.New()
	err := newDeployer(remote, &fakeLocal{}, web1).Frontend(context.Background(), request(frontendSource(), ""))
	assert.Error(t, err)
	assert.Empty(t, remote.Calls())
}

func TestFrontendDevelopUsesGivenHost(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{artifact: "shop", payload: []byte("static files")}
	d := newDeployer(remote, local)
	require.NoError(t, d.FrontendDevelop(context.Background(), request(frontendSource(), "dev"), web2))
	for _, c := range remote.Calls() {
		assert.Equal(t, web2, c.Host)
	}
	assert.NotEmpty(t, remote.Calls())
}

func TestSimpleDeploy(t *testing.T) {
	remote := executortest.New()
	local := &fakeLocal{}
	require.NoError(t, newDeployer(remote, local, web1).Simple(context.Background(), request(&fakeSource{}, "")))

	assert.Empty(t, local.builds)
	cmds := remote.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "tar --strip-components 1 -x -z -v -f - -C "+releaseDir, cmds[1])
	call, _ := remote.Find("tar --strip-components")
	assert.Equal(t, "raw archive", call.Stdin)
}

func TestInvalidReleaseIsRejected(t *testing.T) {
	remote := executortest.New()
	req := request(&fakeSource{}, "")
	req.Release.ReferenceName = "feature/x"
	assert.Error(t, newDeployer(remote, &fakeLocal{}, web1).Simple(context.Background(), req))
	assert.Empty(t, remote.Calls())
}
