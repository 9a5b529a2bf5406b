package control

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/gitlab-deploy/pkg/config"
	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/executor/executortest"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
	"github.com/wentf9/gitlab-deploy/pkg/logger"
	"github.com/wentf9/gitlab-deploy/pkg/models"
	"github.com/wentf9/gitlab-deploy/pkg/phase"
)

const releaseDir = "/home/deploy/gitlab-deploy/projects/shop-42/main-abcdef01"

var (
	web1 = models.HostSpec{User: "deploy", Host: "web1", Port: 22}
	web2 = models.HostSpec{User: "deploy", Host: "web2", Port: 22}
	now  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

type staticResolver struct {
	hosts phase.HostSet
	err   error
}

func (s staticResolver) Resolve(string, uint64) (phase.HostSet, error) {
	return s.hosts, s.err
}

func newController(f *executortest.Remote, hosts ...models.HostSpec) *Controller {
	c := New(f, staticResolver{hosts: hosts}, config.Default(), logger.Discard())
	c.Now = func() time.Time { return now }
	return c
}

func request() Request {
	return Request{Phase: "prod", Release: layout.Release{
		ProjectName:   "shop",
		ProjectID:     42,
		ReferenceName: "main",
		CommitSHA:     "abcdef0123456789abcdef0123456789abcdef01",
	}}
}

func countContaining(cmds []string, substr string) int {
	n := 0
	for _, c := range cmds {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func TestBackendUp(t *testing.T) {
	f := executortest.New()
	require.NoError(t, newController(f, web1).Backend(context.Background(), request(), Up))

	assert.Equal(t, []string{
		"cd " + releaseDir + " && docker-compose up -d --build && (timeout 10 docker-compose logs -f || true) && " +
			"echo '2024-05-01T12:00:00Z up main-abcdef01' >> " + releaseDir + "/../control.log",
		"echo main-abcdef01 > " + releaseDir + "/../last-up",
	}, f.Commands())
}

func TestBackendStopDoesNotWriteLastUp(t *testing.T) {
	f := executortest.New()
	require.NoError(t, newController(f, web1).Backend(context.Background(), request(), Stop))
	cmds := f.Commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "docker-compose stop && echo")
}

func TestBackendAuditOnlyAfterSuccess(t *testing.T) {
	f := executortest.New().On("docker-compose up", executortest.Response{ExitCode: 1, Stderr: "build failed"})
	err := newController(f, web1, web2).Backend(context.Background(), request(), Up)

	code, ok := executor.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 1, code)

	cmds := f.Commands()
	require.Len(t, cmds, 1, "no last-up write and no second host after a failed action")
	// 审计日志与动作在同一条命令中，以 && 串联在动作之后
	parts := strings.Split(cmds[0], " && ")
	assert.True(t, strings.HasPrefix(parts[len(parts)-1], "echo "))
	assert.Contains(t, parts[len(parts)-1], "control.log")
	for _, c := range f.Calls() {
		assert.Equal(t, web1, c.Host)
	}
}

func TestDownAndUpWithoutLastUp(t *testing.T) {
	f := executortest.New().On("cat ", executortest.Response{ExitCode: 1, Stderr: "No such file"})
	require.NoError(t, newController(f, web1).Backend(context.Background(), request(), DownAndUp))

	cmds := f.Commands()
	assert.Equal(t, 0, countContaining(cmds, "docker-compose down"))
	assert.Equal(t, 1, countContaining(cmds, "docker-compose up"))
	assert.Equal(t, 1, countContaining(cmds, "> "+releaseDir+"/../last-up"))
}

func TestDownAndUpSameRelease(t *testing.T) {
	f := executortest.New().On("cat ", executortest.Response{Stdout: "main-abcdef01\n"})
	require.NoError(t, newController(f, web1).Backend(context.Background(), request(), DownAndUp))
	assert.Equal(t, 0, countContaining(f.Commands(), "docker-compose down"))
}

func TestDownAndUpWithPreviousRelease(t *testing.T) {
	f := executortest.New().
		On("cat ", executortest.Response{Stdout: "old-12345678\n"}).
		On("docker-compose down", executortest.Response{ExitCode: 1})
	require.NoError(t, newController(f, web1).Backend(context.Background(), request(), DownAndUp))

	cmds := f.Commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, "cat "+releaseDir+"/../last-up", cmds[0])
	assert.Equal(t, "cd /home/deploy/gitlab-deploy/projects/shop-42/old-12345678 && docker-compose down", cmds[1])
	assert.True(t, strings.HasPrefix(cmds[2], "cd "+releaseDir+" && docker-compose up -d --build"))
	assert.Contains(t, cmds[2], "down_up main-abcdef01")
	assert.Equal(t, "echo main-abcdef01 > "+releaseDir+"/../last-up", cmds[3])
}

func TestDownAndUpIgnoresMalformedLastUp(t *testing.T) {
	for _, lastUp := range []string{"x; rm -rf /", "..", ".", "main", "../main-abcdef01"} {
		t.Run(lastUp, func(t *testing.T) {
			f := executortest.New().On("cat ", executortest.Response{Stdout: lastUp + "\n"})
			require.NoError(t, newController(f, web1).Backend(context.Background(), request(), DownAndUp))
			assert.Equal(t, 0, countContaining(f.Commands(), "docker-compose down"))
		})
	}
}

func TestLastUpWriteFailureIsWarning(t *testing.T) {
	f := executortest.New().On("> "+releaseDir+"/../last-up", executortest.Response{ExitCode: 1})
	assert.NoError(t, newController(f, web1, web2).Backend(context.Background(), request(), Up))
	assert.Equal(t, 2, countContaining(f.Commands(), "docker-compose up"))
}

func TestNoHostsIsNotAnError(t *testing.T) {
	f := executortest.New()
	require.NoError(t, newController(f).Backend(context.Background(), request(), Up))
	assert.Empty(t, f.Calls())
}

func TestResolveErrorIsReturned(t *testing.T) {
	f := executortest.New()
	c := New(f, staticResolver{err: phase.ErrProjectNotConfigured}, config.Default(), logger.Discard())
	assert.ErrorIs(t, c.Backend(context.Background(), request(), Up), phase.ErrProjectNotConfigured)
	assert.Empty(t, f.Calls())
}

func TestFrontendApply(t *testing.T) {
	f := executortest.New().On("find ", executortest.Response{Stdout: releaseDir + "/shop.tar.zst\n"})
	require.NoError(t, newController(f, web1).Frontend(context.Background(), request()))

	cmds := f.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "find "+releaseDir+" -mindepth 1 -maxdepth 1 -iname '*.tar.zst' | head -1", cmds[0])
	html := "/home/deploy/gitlab-deploy/services/shop/html"
	assert.Equal(t, "cd "+releaseDir+
		" && rm -rf public && mkdir public"+
		" && (zstd -T0 -d -c "+releaseDir+"/shop.tar.zst | tar -xf - -C public)"+
		" && mkdir -p "+html+
		" && (([ -d "+html+" ] && rm -r "+html+") || true)"+
		" && cp -r public "+html+
		" && rm -r public"+
		" && echo '2024-05-01T12:00:00Z apply main-abcdef01' >> "+releaseDir+"/../control.log", cmds[1])
}

func TestFrontendWithoutArtifact(t *testing.T) {
	f := executortest.New()
	err := newController(f, web1).Frontend(context.Background(), request())
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestSimple(t *testing.T) {
	tests := []struct {
		name   string
		argv   []string
		inject bool
		want   string
	}{
		{"plain", []string{"ls", "-la"}, false, "ls -la"},
		{"inject", []string{"ls", "-la"}, true, "ls " + releaseDir + " -la"},
		{"inject sudo", []string{"sudo", "ls", "-la"}, true, "sudo ls " + releaseDir + " -la"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := executortest.New()
			require.NoError(t, newController(f, web1).Simple(context.Background(), request(), tt.argv, tt.inject))
			cmds := f.Commands()
			require.Len(t, cmds, 2)
			assert.Equal(t, tt.want, cmds[0])
			assert.Contains(t, cmds[1], "cd "+releaseDir+" && echo ")
			assert.Contains(t, cmds[1], "control.log")
		})
	}
}

func TestSimpleFailureSkipsAudit(t *testing.T) {
	f := executortest.New().On("systemctl", executortest.Response{ExitCode: 3})
	err := newController(f, web1).Simple(context.Background(), request(), []string{"systemctl", "restart", "shop"}, false)
	require.Error(t, err)
	assert.Len(t, f.Commands(), 1)
}

func TestSimpleSudoAlone(t *testing.T) {
	f := executortest.New()
	err := newController(f, web1).Simple(context.Background(), request(), []string{"sudo"}, true)
	assert.Error(t, err)
}

func TestPublicName(t *testing.T) {
	assert.Equal(t, "shop", PublicName("/srv/r/shop.tar.zst\n"))
	assert.Equal(t, "shop", PublicName("/srv/r/shop.TAR.ZST"))
}
