// Package executortest 提供记录调用的内存 Remote，供编排逻辑的测试使用
package executortest

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wentf9/gitlab-deploy/pkg/executor"
	"github.com/wentf9/gitlab-deploy/pkg/models"
)

// Call 一次远程调用
type Call struct {
	Host    models.HostSpec
	Command string
	Stdin   string
	Timeout time.Duration
	// Copy 调用时为 "local -> remote"，Command 为空
	Copy string
}

// Response 匹配到的命令返回的内容
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

type rule struct {
	substr string
	resp   Response
}

// Remote 按子串匹配返回预设结果，未匹配的命令返回成功
// 默认对 "echo $HOME" 返回 /home/<user>
type Remote struct {
	HomeFunc func(models.HostSpec) string

	mu      sync.Mutex
	calls   []Call
	rules   []rule
	copyErr error
}

func New() *Remote {
	return &Remote{}
}

// On 注册规则，command 包含 substr 时返回 resp，后注册的优先
func (f *Remote) On(substr string, resp Response) *Remote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{substr: substr, resp: resp})
	return f
}

// FailCopy 让之后的 Copy 都返回 err
func (f *Remote) FailCopy(err error) *Remote {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyErr = err
	return f
}

func (f *Remote) Run(ctx context.Context, host models.HostSpec, command string, opts ...executor.RunOption) (*executor.Result, error) {
	stdin := executor.StdinOf(opts)
	call := Call{Host: host, Command: command, Timeout: executor.TimeoutOf(opts)}
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		call.Stdin = string(b)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	resp, ok := f.match(command)
	f.mu.Unlock()

	if !ok && command == "echo $HOME" {
		home := "/home/" + host.User
		if f.HomeFunc != nil {
			home = f.HomeFunc(host)
		}
		resp = Response{Stdout: home + "\n"}
	}
	res := &executor.Result{ExitCode: resp.ExitCode, Stdout: []byte(resp.Stdout), Stderr: []byte(resp.Stderr)}
	if resp.ExitCode != 0 {
		return res, &executor.ExecError{Target: host.String(), Command: command, ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return res, nil
}

func (f *Remote) match(command string) (Response, bool) {
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(command, f.rules[i].substr) {
			return f.rules[i].resp, true
		}
	}
	return Response{}, false
}

func (f *Remote) Copy(ctx context.Context, host models.HostSpec, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Host: host, Copy: localPath + " -> " + remotePath})
	return f.copyErr
}

// Calls 返回全部调用记录的副本
func (f *Remote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Commands 只返回 Run 的命令，跳过 echo $HOME 与 Copy
func (f *Remote) Commands() []string {
	var out []string
	for _, c := range f.Calls() {
		if c.Copy != "" || c.Command == "echo $HOME" {
			continue
		}
		out = append(out, c.Command)
	}
	return out
}

// Find 返回第一条包含 substr 的调用
func (f *Remote) Find(substr string) (Call, bool) {
	for _, c := range f.Calls() {
		if strings.Contains(c.Command, substr) || strings.Contains(c.Copy, substr) {
			return c, true
		}
	}
	return Call{}, false
}
