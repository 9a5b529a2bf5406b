package control

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Command 生命周期命令，封闭集合
type Command int

const (
	Up Command = iota
	Stop
	Down
	Logs
	// DownAndUp 先关闭 last-up 记录的旧版本，再启动目标版本
	DownAndUp
)

// ParseCommand 不区分大小写
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", "up":
		return Up, nil
	case "stop":
		return Stop, nil
	case "down":
		return Down, nil
	case "log", "logs":
		return Logs, nil
	case "down_up", "restart":
		return DownAndUp, nil
	default:
		return 0, fmt.Errorf("unknown command %q, expected one of start|up, stop, down, log|logs, down_up|restart", s)
	}
}

func (c Command) String() string {
	switch c {
	case Up:
		return "up"
	case Stop:
		return "stop"
	case Down:
		return "down"
	case Logs:
		return "logs"
	case DownAndUp:
		return "down_up"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Script 在发布目录中执行的 shell 片段
// logTail 大于 0 时 up 之后跟踪日志，跟踪失败不影响结果
func (c Command) Script(logTail time.Duration) string {
	switch c {
	case Up, DownAndUp:
		script := "docker-compose up -d --build"
		if logTail > 0 {
			seconds := int(math.Ceil(logTail.Seconds()))
			script += fmt.Sprintf(" && (timeout %d docker-compose logs -f || true)", seconds)
		}
		return script
	case Stop:
		return "docker-compose stop"
	case Down:
		return "docker-compose down"
	case Logs:
		return "docker-compose logs"
	default:
		panic(fmt.Sprintf("control: unhandled command %d", int(c)))
	}
}

// WritesLastUp 成功后是否更新 last-up
func (c Command) WritesLastUp() bool {
	return c == Up || c == DownAndUp
}
