// Package source 取得某个提交的项目快照
package source

import (
	"context"
)

// Source 项目快照来源
type Source interface {
	// Describe 用于日志
	Describe() string
	// Extract 把项目文件树展开到 dir，去掉归档中的第一层目录
	Extract(ctx context.Context, dir string) error
	// Archive 把原始 .tar.gz 写到 path，归档中包含一层顶层目录
	Archive(ctx context.Context, path string) error
}
