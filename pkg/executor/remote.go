package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// GetSSHHome 读取远程用户的 $HOME，去掉首尾空白和结尾的 /
func GetSSHHome(ctx context.Context, r Remote, host models.HostSpec) (string, error) {
	res, err := r.Run(ctx, host, "echo $HOME", WithCapture())
	if err != nil {
		return "", fmt.Errorf("get home directory of %s: %w", host, err)
	}
	home := strings.TrimRight(strings.TrimSpace(string(res.Stdout)), "/")
	if home == "" {
		return "", fmt.Errorf("get home directory of %s: empty $HOME", host)
	}
	return home, nil
}

// CheckFileExist test -f 的结果，0 为存在，1 为不存在
func CheckFileExist(ctx context.Context, r Remote, host models.HostSpec, path string) (bool, error) {
	return check(ctx, r, host, "-f", path)
}

// CheckDirectoryExist test -d 的结果
func CheckDirectoryExist(ctx context.Context, r Remote, host models.HostSpec, path string) (bool, error) {
	return check(ctx, r, host, "-d", path)
}

func check(ctx context.Context, r Remote, host models.HostSpec, flag, path string) (bool, error) {
	_, err := r.Run(ctx, host, "test "+flag+" "+Quote(path), WithCapture())
	if err == nil {
		return true, nil
	}
	if code, ok := ExitCodeOf(err); ok && code == 1 {
		return false, nil
	}
	return false, fmt.Errorf("%w: test %s %s on %s: %w", ErrRemoteCheckFailed, flag, path, host, err)
}

// ListTimeout ListRemoteFiles 的超时，列目录失败不影响部署结果
const ListTimeout = 30 * time.Second

// ListRemoteFiles 打印远程目录内容，失败只记录警告
func ListRemoteFiles(ctx context.Context, r Remote, host models.HostSpec, dir string, log *slog.Logger) {
	res, err := r.Run(ctx, host, "ls "+Quote(dir), WithCapture(), WithTimeout(ListTimeout))
	if err != nil {
		log.Warn("cannot list remote files", "host", host.String(), "dir", dir, "error", err)
		return
	}
	for _, name := range strings.Fields(string(res.Stdout)) {
		log.Info("remote file", "host", host.String(), "name", name)
	}
}

// ReadRemoteFile 读取远程文件内容
func ReadRemoteFile(ctx context.Context, r Remote, host models.HostSpec, path string) (string, error) {
	res, err := r.Run(ctx, host, "cat "+Quote(path), WithCapture())
	if err != nil {
		return "", fmt.Errorf("read %s on %s: %w", path, host, err)
	}
	return string(res.Stdout), nil
}

// WriteRemoteFile 通过 cat - > path 把 content 写入远程文件
func WriteRemoteFile(ctx context.Context, r Remote, host models.HostSpec, path string, content io.Reader) error {
	if _, err := r.Run(ctx, host, "cat - > "+Quote(path), WithStdin(content), WithCapture()); err != nil {
		return fmt.Errorf("write %s on %s: %w", path, host, err)
	}
	return nil
}

// MakeDirectory mkdir -p
func MakeDirectory(ctx context.Context, r Remote, host models.HostSpec, dir string) error {
	if _, err := r.Run(ctx, host, "mkdir -p "+Quote(dir), WithCapture()); err != nil {
		return fmt.Errorf("create directory %s on %s: %w", dir, host, err)
	}
	return nil
}
