package executor_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/executor/executortest"
	"github.com/wentf9/gitlab-deploy/pkg/logger"
	"github.com/wentf9/gitlab-deploy/pkg/models"
)

var web = models.HostSpec{User: "deploy", Host: "web1", Port: 2200}

func TestCreateSSHCommand(t *testing.T) {
	cmd := executor.CreateSSHCommand(context.Background(), web, "echo $HOME")
	assert.Equal(t, []string{
		"ssh", "-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes",
		"-p", "2200", "deploy@web1", "echo $HOME",
	}, cmd.Args)
}

func TestCreateSCPCommand(t *testing.T) {
	cmd := executor.CreateSCPCommand(context.Background(), models.HostSpec{User: "u", Host: "h"}, "/tmp/a.tar.zst", "/home/u/r/a.tar.zst")
	assert.Equal(t, []string{
		"scp", "-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes",
		"-P", "22", "/tmp/a.tar.zst", "u@h:/home/u/r/a.tar.zst",
	}, cmd.Args)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "/home/deploy/app", executor.Quote("/home/deploy/app"))
	assert.Equal(t, "'/home/my app'", executor.Quote("/home/my app"))
	assert.Equal(t, `\$HOME`, executor.Quote("$HOME"))
	assert.Equal(t, "''", executor.Quote(""))
}

func TestGetSSHHome(t *testing.T) {
	f := executortest.New().On("echo $HOME", executortest.Response{Stdout: "/home/deploy/\n"})
	home, err := executor.GetSSHHome(context.Background(), f, web)
	require.NoError(t, err)
	assert.Equal(t, "/home/deploy", home)
}

func TestCheckFileExist(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		want   bool
		failed bool
	}{
		{"exists", 0, true, false},
		{"missing", 1, false, false},
		{"broken", 255, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := executortest.New().On("test -f", executortest.Response{ExitCode: tt.code})
			ok, err := executor.CheckFileExist(context.Background(), f, web, "/srv/a")
			assert.Equal(t, tt.want, ok)
			if tt.failed {
				assert.ErrorIs(t, err, executor.ErrRemoteCheckFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []string{"test -f /srv/a"}, f.Commands())
		})
	}
}

func TestListRemoteFilesIsBestEffort(t *testing.T) {
	f := executortest.New().On("ls", executortest.Response{ExitCode: 2, Stderr: "no such file"})
	executor.ListRemoteFiles(context.Background(), f, web, "/srv", logger.Discard())
	require.Len(t, f.Calls(), 1)
	assert.Equal(t, executor.ListTimeout, f.Calls()[0].Timeout)
}

func TestWriteRemoteFile(t *testing.T) {
	f := executortest.New()
	require.NoError(t, executor.WriteRemoteFile(context.Background(), f, web, "/srv/r/docker-compose.yml", strings.NewReader("services: {}\n")))
	call, ok := f.Find("cat - >")
	require.True(t, ok)
	assert.Equal(t, "cat - > /srv/r/docker-compose.yml", call.Command)
	assert.Equal(t, "services: {}\n", call.Stdin)
}

func TestExecError(t *testing.T) {
	err := &executor.ExecError{Target: "deploy@web1", Command: "docker image load", ExitCode: 1, Stderr: "permission denied\n"}
	assert.Equal(t, "deploy@web1: \"docker image load\" exited with code 1\npermission denied", err.Error())

	code, ok := executor.ExitCodeOf(errors.Join(errors.New("wrapped"), err))
	assert.True(t, ok)
	assert.Equal(t, 1, code)

	signaled := &executor.ExecError{Command: "sleep 100", ExitCode: -1}
	assert.Contains(t, signaled.Error(), "was terminated")
}

func TestPipelineZstdFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.tar.zst")
	payload := bytes.Repeat([]byte("image layer "), 4096)

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = enc.Write(payload)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, compressed.Bytes(), 0o644))

	f := executortest.New()
	p := executor.Pipeline{Source: executor.ZstdFile{Path: path}, Host: web, Command: "docker image load"}
	require.NoError(t, p.Run(context.Background(), f))

	call, ok := f.Find("docker image load")
	require.True(t, ok)
	assert.Equal(t, string(payload), call.Stdin)
}

func TestPipelineLocalProcess(t *testing.T) {
	f := executortest.New()
	p := executor.Pipeline{
		Source:  executor.LocalProcess{Argv: []string{"sh", "-c", "printf hello"}},
		Host:    web,
		Command: "docker image load",
	}
	require.NoError(t, p.Run(context.Background(), f))
	call, ok := f.Find("docker image load")
	require.True(t, ok)
	assert.Equal(t, "hello", call.Stdin)

	failing := executor.Pipeline{
		Source:  executor.LocalProcess{Argv: []string{"sh", "-c", "printf partial; exit 4"}},
		Host:    web,
		Command: "docker image load",
	}
	err := failing.Run(context.Background(), executortest.New())
	code, ok := executor.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 4, code)
	assert.Contains(t, err.Error(), "sh -c ")
}

func TestPipelineRemoteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("archive"), 0o644))

	f := executortest.New().On("tar", executortest.Response{ExitCode: 2})
	p := executor.Pipeline{Source: executor.File{Path: path}, Host: web, Command: "tar -x -f -"}
	err := p.Run(context.Background(), f)
	code, ok := executor.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 2, code)
}

func TestPipelineSourceFailure(t *testing.T) {
	f := executortest.New()
	p := executor.Pipeline{Source: executor.ZstdFile{Path: filepath.Join(t.TempDir(), "missing.tar.zst")}, Host: web, Command: "docker image load"}
	err := p.Run(context.Background(), f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zstd -d")
}

func TestLocalExecutor(t *testing.T) {
	var out bytes.Buffer
	e := executor.NewLocalExecutor(0, logger.Discard())
	e.Stdout = &out

	require.NoError(t, e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "echo $GREETING"}, "GREETING=hello"))
	assert.Equal(t, "hello\n", out.String())

	err := e.Run(context.Background(), "", []string{"sh", "-c", "echo boom >&2; exit 3"})
	code, ok := executor.ExitCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, 3, code)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, e.Check("sh"))
	assert.Error(t, e.Check("sh", "definitely-not-installed-tool"))
}
