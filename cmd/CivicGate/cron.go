package main

import (
	"context"
	"time"

	"CivicGate/internal/biz"
	"CivicGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// HealthSweep 定时探测全部引擎，刷新 engine_up 指标
type HealthSweep struct {
	spec   string
	uc     *biz.SystemUsecase
	cron   *cron.Cron
	helper *log.Helper
}

// NewHealthSweep creates the sweep; an empty cron spec disables it.
func NewHealthSweep(c *conf.Health, uc *biz.SystemUsecase, logger log.Logger) *HealthSweep {
	spec := ""
	if c != nil {
		spec = c.SweepCron
	}
	return &HealthSweep{spec: spec, uc: uc, helper: log.NewHelper(logger)}
}

// Start 启动健康巡检定时任务
// Cron 表达式带秒字段（秒 分 时 日 月 周），默认每分钟一次
func (s *HealthSweep) Start(context.Context) error {
	if s.spec == "" {
		s.helper.Info("health sweep disabled")
		return nil
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		report := s.uc.Sweep(ctx)
		if report.Unhealthy > 0 {
			s.helper.Warnw("msg", "health sweep found unreachable engines", "healthy", report.Healthy, "unhealthy", report.Unhealthy)
		}
	})
	if err != nil {
		s.helper.Errorw("msg", "failed to register health sweep cron job", "spec", s.spec, "error", err)
		return err
	}

	c.Start()
	s.cron = c
	s.helper.Infow("msg", "health sweep cron job started", "spec", s.spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *HealthSweep) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	return nil
}
