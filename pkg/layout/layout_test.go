package layout

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

const (
	shaA = "abcdef0123456789abcdef0123456789abcdef01"
	shaB = "12345678abcdef0123456789abcdef0123456789"
)

func release(sha string) Release {
	return Release{ProjectName: "shop", ProjectID: 42, ReferenceName: "main", CommitSHA: models.CommitSHA(sha)}
}

func TestLayoutPaths(t *testing.T) {
	l := New("/home/deploy", "gitlab-deploy/projects", release(shaA))

	assert.Equal(t, "/home/deploy/gitlab-deploy/projects", l.Root())
	assert.Equal(t, "/home/deploy/gitlab-deploy/projects/shop-42", l.ProjectDir())
	assert.Equal(t, "/home/deploy/gitlab-deploy/projects/shop-42/main-abcdef01", l.ReleaseDir())
	assert.Equal(t, "main-abcdef01", l.ReleaseName())
	assert.Equal(t, l.ReleaseDir()+"/../control.log", l.ControlLog())
	assert.Equal(t, l.ReleaseDir()+"/../last-up", l.LastUp())
	assert.Equal(t, l.ReleaseDir()+"/docker-compose.yml", l.ComposeFile())
	assert.Equal(t, l.ReleaseDir()+"/api.tar.zst", l.Artifact("api"))
	assert.Equal(t, "/home/deploy/gitlab-deploy/services/shop/html", l.HTMLDir("gitlab-deploy/services", "shop"))
	assert.Equal(t, l.ProjectDir()+"/dev-00000000", l.ReleaseDirOf("dev-00000000"))
}

func TestLayoutStable(t *testing.T) {
	a1 := New("/home/deploy", "p", release(shaA))
	a2 := New("/home/deploy", "p", release(shaA))
	b := New("/home/deploy", "p", release(shaB))

	assert.Equal(t, a1, a2)
	assert.Equal(t, a1.ProjectDir(), b.ProjectDir())
	assert.NotEqual(t, a1.ReleaseDir(), b.ReleaseDir())
	assert.Equal(t, strings.TrimSuffix(a1.ReleaseDir(), "abcdef01"), strings.TrimSuffix(b.ReleaseDir(), "12345678"))
}

func TestReleaseValidate(t *testing.T) {
	assert.NoError(t, release(shaA).Validate())

	bad := release(shaA)
	bad.ReferenceName = "feature/x"
	assert.Error(t, bad.Validate())

	bad = release("abc")
	assert.Error(t, bad.Validate())
}
