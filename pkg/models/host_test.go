package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    HostSpec
		display string
		wantErr bool
	}{
		{in: "deploy@web1", want: HostSpec{"deploy", "web1", 22}, display: "deploy@web1"},
		{in: "deploy@web1:22", want: HostSpec{"deploy", "web1", 22}, display: "deploy@web1"},
		{in: "deploy@10.0.0.5:2200", want: HostSpec{"deploy", "10.0.0.5", 2200}, display: "deploy@10.0.0.5:2200"},
		{in: "web1", wantErr: true},
		{in: "deploy@", wantErr: true},
		{in: "deploy@web1:", wantErr: true},
		{in: "deploy@web1:70000", wantErr: true},
		{in: "deploy@web1:0", wantErr: true},
		{in: "de ploy@web1", wantErr: true},
		{in: "deploy@web/1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHostSpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.display, got.String())
		})
	}
}

func TestHostSpecComparable(t *testing.T) {
	a, _ := ParseHostSpec("u@h")
	b, _ := ParseHostSpec("u@h:22")
	c, _ := ParseHostSpec("u@h:23")
	seen := map[HostSpec]bool{a: true}
	assert.True(t, seen[b])
	assert.False(t, seen[c])
	assert.Equal(t, "h:23", c.Addr())
}

func TestCommitSHA(t *testing.T) {
	sha, err := ParseCommitSHA("0123456789abcdef0123456789abcdef01234567")
	require.NoError(t, err)
	assert.Equal(t, "01234567", sha.Short())

	_, err = ParseCommitSHA("0123")
	assert.Error(t, err)
}

func TestValidateNames(t *testing.T) {
	assert.NoError(t, ValidateName("project name", "my-app.v2_x"))
	assert.Error(t, ValidateName("project name", "a/b"))
	assert.Error(t, ValidateName("project name", ""))
	assert.NoError(t, ValidateImageName("api-server"))
	assert.Error(t, ValidateImageName("Api"))
	assert.NoError(t, ValidateBuildTarget("prod"))
	assert.Error(t, ValidateBuildTarget("prod.1"))
}
