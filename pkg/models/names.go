package models

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	nameRegexp        = regexp.MustCompile(`^[a-zA-Z0-9\-_.]{1,80}$`)
	imageNameRegexp   = regexp.MustCompile(`^[a-z0-9\-_]{1,80}$`)
	buildTargetRegexp = regexp.MustCompile(`^[a-z0-9\-_]{1,80}$`)
	commitSHARegexp   = regexp.MustCompile(`^[a-zA-Z0-9]{40}$`)
	releaseRegexp     = regexp.MustCompile(`^[a-zA-Z0-9\-_.]{1,80}-[a-zA-Z0-9]{8}$`)
)

// ShortSHALength 嵌入远程路径的提交哈希长度
const ShortSHALength = 8

// CommitSHA 40 位提交哈希
type CommitSHA string

func ParseCommitSHA(s string) (CommitSHA, error) {
	if !commitSHARegexp.MatchString(s) {
		return "", fmt.Errorf("%q is not a correct commit sha", s)
	}
	return CommitSHA(s), nil
}

// Short 返回前 8 位，只有这部分出现在远程目录名中
func (c CommitSHA) Short() string {
	if len(c) < ShortSHALength {
		return string(c)
	}
	return string(c[:ShortSHALength])
}

func (c CommitSHA) String() string {
	return string(c)
}

// ValidateName 校验项目名、引用名和阶段名，. 与 .. 不是合法名称
func ValidateName(kind, s string) error {
	if !nameRegexp.MatchString(s) || s == "." || s == ".." {
		return fmt.Errorf("%q is not a correct %s", s, kind)
	}
	return nil
}

// ValidateReleaseName 校验 <ref>-<short sha> 形式的发布目录名
func ValidateReleaseName(s string) error {
	if !releaseRegexp.MatchString(s) {
		return fmt.Errorf("%q is not a correct release name", s)
	}
	return nil
}

// ValidateImageName 校验 deploy/image-name.txt 的内容
func ValidateImageName(s string) error {
	if !imageNameRegexp.MatchString(s) {
		return fmt.Errorf("%q is not a correct image name", s)
	}
	return nil
}

// ValidateBuildTarget 校验传给 deploy/build.sh 的构建目标
func ValidateBuildTarget(s string) error {
	if !buildTargetRegexp.MatchString(s) {
		return fmt.Errorf("%q is not a correct build target", s)
	}
	return nil
}

var sshURLPrefixRegexp = regexp.MustCompile(`^(ssh://)?[^/\s]+@[^/\s:]+(?::[^/\s]+)?$`)

// ValidateSSHURLPrefix 校验 git@gitlab.example.com 或 ssh://git@host:port 形式的前缀
func ValidateSSHURLPrefix(s string) error {
	if !sshURLPrefixRegexp.MatchString(s) {
		return fmt.Errorf("%q is not a correct SSH URL prefix", s)
	}
	return nil
}

// ValidateReference 分支、标签或提交，必须是非空单行
func ValidateReference(s string) error {
	if strings.TrimSpace(s) == "" || strings.ContainsAny(s, "\r\n") {
		return fmt.Errorf("%q is not a correct reference", s)
	}
	return nil
}

// ValidateProjectPath 形如 group/subgroup/name
func ValidateProjectPath(s string) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n") || strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return fmt.Errorf("%q is not a correct project path", s)
	}
	return nil
}
