package executor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRemoteCheckFailed test -f / test -d 返回了 0 和 1 以外的退出码
var ErrRemoteCheckFailed = errors.New("remote check failed")

// ExecError 子进程退出码非 0 或被信号终止(ExitCode 为 -1)
type ExecError struct {
	Target   string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	if e.Target != "" {
		fmt.Fprintf(&b, "%s: ", e.Target)
	}
	fmt.Fprintf(&b, "%q ", e.Command)
	if e.ExitCode < 0 {
		b.WriteString("was terminated")
	} else {
		fmt.Fprintf(&b, "exited with code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString("\n")
		b.WriteString(stderr)
	}
	return b.String()
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExitCodeOf 从错误链中取出退出码，不是 ExecError 时返回 false
func ExitCodeOf(err error) (int, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.ExitCode, true
	}
	return 0, false
}
