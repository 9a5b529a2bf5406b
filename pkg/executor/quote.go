package executor

import (
	shellquote "github.com/kballard/go-shellquote"
)

// Quote 按 POSIX shell 规则转义单个参数，用于拼接远程命令
func Quote(s string) string {
	return shellquote.Join(s)
}

// QuoteAll 逐个转义后以空格连接
func QuoteAll(args ...string) string {
	return shellquote.Join(args...)
}
