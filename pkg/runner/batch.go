package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wentf9/gitlab-deploy/pkg/models"
)

type TaskFunc func(ctx context.Context, host models.HostSpec) error

// HostError 某台主机上的失败，之前已处理的主机不会回滚
type HostError struct {
	Host models.HostSpec
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %v", e.Host, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// RunSequential 逐台执行 task，遇到第一个错误即停止
// 主机之间没有事务，也没有补偿
func RunSequential(ctx context.Context, hosts []models.HostSpec, log *slog.Logger, task TaskFunc) error {
	for i, host := range hosts {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Info("processing host", "host", host.String(), "index", i+1, "total", len(hosts))
		if err := task(ctx, host); err != nil {
			if i > 0 {
				log.Warn("aborting, earlier hosts are not rolled back", "done", i, "remaining", len(hosts)-i-1)
			}
			return &HostError{Host: host, Err: err}
		}
		log.Info("host done", "host", host.String())
	}
	return nil
}
