package phase

import (
	"errors"
	"fmt"
)

var (
	// ErrPhaseNotFound 阶段文件不存在
	ErrPhaseNotFound = errors.New("phase not found")
	// ErrProjectNotConfigured 阶段文件中没有该项目的记录
	ErrProjectNotConfigured = errors.New("project is not configured for phase")
)

// ParseErrorKind 阶段文件语法错误的种类
type ParseErrorKind int

const (
	MalformedProjectID ParseErrorKind = iota
	MalformedBackReference
	DanglingBackReference
	DuplicateHost
	InvalidHostSpec
)

func (k ParseErrorKind) String() string {
	switch k {
	case MalformedProjectID:
		return "malformed project id"
	case MalformedBackReference:
		return "malformed back reference"
	case DanglingBackReference:
		return "back reference without a preceding record"
	case DuplicateHost:
		return "duplicate host"
	case InvalidHostSpec:
		return "invalid host"
	default:
		return fmt.Sprintf("ParseErrorKind(%d)", int(k))
	}
}

// ParseError 带行号(从 1 开始)和出错 token 的语法错误
type ParseError struct {
	Kind  ParseErrorKind
	Path  string
	Line  int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("in %s at line %d, %s", e.Path, e.Line, e.Kind)
	if e.Token != "" {
		msg += fmt.Sprintf(" %q", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
