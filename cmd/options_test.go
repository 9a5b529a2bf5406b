package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/gitlab-deploy/pkg/config"
)

const testSHA = "abcdef0123456789abcdef0123456789abcdef01"

func TestReleaseOptionsFallsBackToEnvironment(t *testing.T) {
	t.Setenv(envProjectID, "42")
	t.Setenv(envProjectName, "shop")
	t.Setenv(envReferenceName, "main")
	t.Setenv(envCommitSHA, testSHA)

	o := &ReleaseOptions{Reference: "v1.0.0"}
	o.Complete("prod")
	r, err := o.Release()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), r.ProjectID)
	assert.Equal(t, "shop", r.ProjectName)
	assert.Equal(t, "v1.0.0", r.ReferenceName, "flags take priority")
	assert.Equal(t, "v1.0.0-abcdef01", r.Name())
}

func TestReleaseOptionsErrors(t *testing.T) {
	t.Setenv(envProjectID, "")
	t.Setenv(envProjectName, "")
	t.Setenv(envReferenceName, "")
	t.Setenv(envCommitSHA, "")

	tests := []struct {
		name string
		o    ReleaseOptions
	}{
		{"missing project id", ReleaseOptions{ProjectName: "shop", Reference: "main", CommitSHA: testSHA}},
		{"bad project id", ReleaseOptions{ProjectID: "-1", ProjectName: "shop", Reference: "main", CommitSHA: testSHA}},
		{"short sha", ReleaseOptions{ProjectID: "1", ProjectName: "shop", Reference: "main", CommitSHA: "abcdef01"}},
		{"bad reference", ReleaseOptions{ProjectID: "1", ProjectName: "shop", Reference: "feature/x", CommitSHA: testSHA}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.o
			o.Complete("prod")
			_, err := o.Release()
			assert.Error(t, err)
		})
	}

	o := ReleaseOptions{ProjectID: "1", ProjectName: "shop", Reference: "main", CommitSHA: testSHA}
	o.Complete("../etc")
	_, err := o.Release()
	assert.Error(t, err, "phase names are validated")
}

func TestSourceOptions(t *testing.T) {
	t.Setenv(envAPIURLPrefix, "https://gitlab.example.com/api/v4")
	t.Setenv(envAPIToken, "")

	o := &SourceOptions{}
	o.Complete()
	assert.Error(t, o.Validate(), "token is required for the archive API")

	o.Token = "secret"
	assert.NoError(t, o.Validate())

	git := &SourceOptions{GitURL: "https://example.com/shop.git"}
	git.Complete()
	assert.NoError(t, git.Validate())
}

func TestSourceSelection(t *testing.T) {
	cfg = config.Default()
	o := &ReleaseOptions{ProjectID: "42", ProjectName: "shop", Reference: "main", CommitSHA: testSHA}
	o.Complete("prod")
	r, err := o.Release()
	require.NoError(t, err)

	api := &SourceOptions{APIURLPrefix: "https://gitlab.example.com/api/v4/", Token: "t"}
	assert.Equal(t, "https://gitlab.example.com/api/v4/projects/42/repository/archive?sha="+testSHA, api.Source(r, nil).Describe())

	git := &SourceOptions{GitURL: "https://example.com/shop.git"}
	assert.Equal(t, "https://example.com/shop.git@abcdef01", git.Source(r, nil).Describe())
}

func TestCommandsAreRegistered(t *testing.T) {
	want := []string{
		"frontend-develop", "frontend-deploy", "frontend-control",
		"backend-develop", "backend-deploy", "backend-control",
		"simple-deploy", "simple-control", "phase", "config", "version",
	}
	for _, name := range want {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}
