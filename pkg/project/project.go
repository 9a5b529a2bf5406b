// Package project 校验从仓库取得的项目文件并执行本地构建
package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/models"
)

const (
	DeployDir       = "deploy"
	BuildScript     = "build.sh"
	DevelopUpScript = "develop-up.sh"
	DevelopDown     = "develop-down.sh"
	PublicNameFile  = "public-name.txt"
	ImageNameFile   = "image-name.txt"
	ComposeFile     = "docker-compose.yml"
	ArtifactSuffix  = ".tar.zst"
)

// ValidationError 项目中缺少或存在不正确的 deploy/* 文件
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.File, e.Reason)
}

func missing(file string) error {
	return &ValidationError{File: file, Reason: "cannot be found in the project"}
}

func incorrect(file string, err error) error {
	return &ValidationError{File: file, Reason: fmt.Sprintf("is not correct: %v", err)}
}

// Project 本地已展开的项目目录
type Project struct {
	Dir string
}

func New(dir string) Project {
	return Project{Dir: dir}
}

// Rel 返回 deploy/<name>，用于错误信息和远程路径
func Rel(name string) string {
	return DeployDir + "/" + name
}

func (p Project) path(name string) string {
	return filepath.Join(p.Dir, DeployDir, name)
}

// Artifact 构建产物 deploy/<name>.tar.zst 的本地路径
func (p Project) Artifact(name string) string {
	return p.path(name + ArtifactSuffix)
}

func (p Project) requireFile(name string) error {
	info, err := os.Stat(p.path(name))
	if err != nil || !info.Mode().IsRegular() {
		return missing(Rel(name))
	}
	return nil
}

// readName 读取单行名称文件并去掉首尾空白
func (p Project) readName(name string, validate func(string) error) (string, error) {
	data, err := os.ReadFile(p.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", missing(Rel(name))
		}
		return "", err
	}
	value := strings.TrimSpace(string(data))
	if err := validate(value); err != nil {
		return "", incorrect(Rel(name), err)
	}
	return value, nil
}

// Frontend 前端项目的校验结果
type Frontend struct {
	PublicName string
}

// CheckFrontend 需要 deploy/build.sh 与 deploy/public-name.txt
func (p Project) CheckFrontend() (Frontend, error) {
	if err := p.requireFile(BuildScript); err != nil {
		return Frontend{}, err
	}
	name, err := p.readName(PublicNameFile, func(s string) error { return models.ValidateName("public name", s) })
	if err != nil {
		return Frontend{}, err
	}
	return Frontend{PublicName: name}, nil
}

// Backend 后端项目的校验结果，Compose 已固定镜像标签
type Backend struct {
	ImageName   string
	ComposePath string
	Compose     string
}

// CheckBackend 需要 deploy/build.sh、deploy/image-name.txt 和包含匹配 image 行的 compose 文件
// target 非空时优先使用 deploy/docker-compose.<target>.yml
func (p Project) CheckBackend(target string, sha models.CommitSHA) (Backend, error) {
	if err := p.requireFile(BuildScript); err != nil {
		return Backend{}, err
	}
	image, err := p.readName(ImageNameFile, models.ValidateImageName)
	if err != nil {
		return Backend{}, err
	}
	composeName, err := p.composeName(target)
	if err != nil {
		return Backend{}, err
	}
	data, err := os.ReadFile(p.path(composeName))
	if err != nil {
		return Backend{}, err
	}
	rendered, err := RenderCompose(string(data), image, sha.Short())
	if err != nil {
		return Backend{}, &ValidationError{File: Rel(composeName), Reason: err.Error()}
	}
	return Backend{ImageName: image, ComposePath: Rel(composeName), Compose: rendered}, nil
}

func (p Project) composeName(target string) (string, error) {
	if target != "" {
		name := fmt.Sprintf("docker-compose.%s.yml", target)
		if p.requireFile(name) == nil {
			return name, nil
		}
	}
	if err := p.requireFile(ComposeFile); err != nil {
		return "", err
	}
	return ComposeFile, nil
}

// CheckDevelop 开发环境还需要 develop-up.sh 和 develop-down.sh
func (p Project) CheckDevelop() error {
	for _, name := range []string{BuildScript, DevelopUpScript, DevelopDown} {
		if err := p.requireFile(name); err != nil {
			return err
		}
	}
	return nil
}

func imageLine(image string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^( *)image: +` + regexp.QuoteMeta(image) + ` *$`)
}

// CheckCompose compose 内容中必须有 image: <image> 一行
func CheckCompose(compose, image string) error {
	if !imageLine(image).MatchString(compose) {
		return fmt.Errorf("has no line matching \"image: %s\"", image)
	}
	return nil
}

// RenderCompose 把 image: <image> 改写为 image: <image>:<tag>，保留缩进
func RenderCompose(compose, image, tag string) (string, error) {
	if err := CheckCompose(compose, image); err != nil {
		return "", err
	}
	return imageLine(image).ReplaceAllString(compose, "${1}image: "+image+":"+tag), nil
}

// Build 在项目目录执行 bash deploy/build.sh [target]
func (p Project) Build(ctx context.Context, local executor.Local, target string, sha models.CommitSHA) error {
	argv := []string{"bash", Rel(BuildScript)}
	if target != "" {
		argv = append(argv, target)
	}
	env := []string{"COMMIT_SHA=" + sha.String(), "COMMIT_SHORT_SHA=" + sha.Short()}
	if err := local.Run(ctx, p.Dir, argv, env...); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// CheckArtifact 构建结束后产物必须存在
func (p Project) CheckArtifact(name string) (os.FileInfo, error) {
	info, err := os.Stat(p.Artifact(name))
	if err != nil || !info.Mode().IsRegular() {
		return nil, &ValidationError{File: Rel(name + ArtifactSuffix), Reason: "was not produced by " + Rel(BuildScript)}
	}
	return info, nil
}
