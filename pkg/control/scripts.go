package control

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/layout"
)

// TimestampLayout control.log 中的时间格式
const TimestampLayout = time.RFC3339

const publicStaging = "public"

// AuditCommand 追加一行 "<时间> <动作> <ref-short>" 到 control.log
func AuditCommand(l layout.Layout, now time.Time, action string) string {
	line := fmt.Sprintf("%s %s %s", now.Format(TimestampLayout), action, l.ReleaseName())
	return fmt.Sprintf("echo %s >> %s", executor.Quote(line), executor.Quote(l.ControlLog()))
}

// LifecycleCommand cd 到发布目录执行 cmd，成功后才写审计日志
func LifecycleCommand(l layout.Layout, cmd Command, logTail time.Duration, now time.Time) string {
	return fmt.Sprintf("cd %s && %s && %s",
		executor.Quote(l.ReleaseDir()), cmd.Script(logTail), AuditCommand(l, now, cmd.String()))
}

// ShutdownCommand 在另一个发布目录中执行 down
func ShutdownCommand(l layout.Layout, releaseName string) string {
	return fmt.Sprintf("cd %s && %s", executor.Quote(l.ReleaseDirOf(releaseName)), Down.Script(0))
}

// LastUpCommand 记录当前生效的版本
func LastUpCommand(l layout.Layout) string {
	return fmt.Sprintf("echo %s > %s", executor.Quote(l.ReleaseName()), executor.Quote(l.LastUp()))
}

// FindArtifactCommand 找出发布目录下的第一个 *.tar.zst
func FindArtifactCommand(l layout.Layout) string {
	return fmt.Sprintf("find %s -mindepth 1 -maxdepth 1 -iname '*%s' | head -1",
		executor.Quote(l.ReleaseDir()), layout.ArtifactSuffix)
}

// PublicName 由产物文件名得到 public name
func PublicName(artifact string) string {
	base := path.Base(strings.TrimSpace(artifact))
	if len(base) > len(layout.ArtifactSuffix) && strings.EqualFold(base[len(base)-len(layout.ArtifactSuffix):], layout.ArtifactSuffix) {
		return base[:len(base)-len(layout.ArtifactSuffix)]
	}
	return base
}

// ApplyCommand 解压前端产物到临时的 public/，替换 html 目录，最后写 apply 审计日志
func ApplyCommand(l layout.Layout, artifact, htmlDir string, now time.Time) string {
	html := executor.Quote(htmlDir)
	steps := []string{
		"cd " + executor.Quote(l.ReleaseDir()),
		"rm -rf " + publicStaging,
		"mkdir " + publicStaging,
		fmt.Sprintf("(zstd -T0 -d -c %s | tar -xf - -C %s)", executor.Quote(artifact), publicStaging),
		"mkdir -p " + html,
		fmt.Sprintf("(([ -d %s ] && rm -r %s) || true)", html, html),
		fmt.Sprintf("cp -r %s %s", publicStaging, html),
		"rm -r " + publicStaging,
		AuditCommand(l, now, "apply"),
	}
	return strings.Join(steps, " && ")
}

// SimpleCommand 拼接用户给出的命令
// inject 时把发布目录插入到第一个参数之后，argv[0] 为 sudo 时插入到第二个参数之后
func SimpleCommand(l layout.Layout, argv []string, inject bool) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("no command given")
	}
	if !inject {
		return strings.Join(argv, " "), nil
	}
	prefix := argv[:1]
	if argv[0] == "sudo" {
		if len(argv) < 2 {
			return "", fmt.Errorf("no command given after sudo")
		}
		prefix = argv[:2]
	}
	parts := append(append([]string{}, prefix...), executor.Quote(l.ReleaseDir()))
	parts = append(parts, argv[len(prefix):]...)
	return strings.Join(parts, " "), nil
}

// SimpleAuditCommand 自定义命令成功后单独写入审计日志
func SimpleAuditCommand(l layout.Layout, now time.Time, command string) string {
	return fmt.Sprintf("cd %s && %s", executor.Quote(l.ReleaseDir()), AuditCommand(l, now, strconv.Quote(command)))
}
