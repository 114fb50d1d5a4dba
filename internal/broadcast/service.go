package broadcast

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	kit "adventbot/internal/transport"
	"adventbot/pkg/logx"
)

type Config struct {
	RatePerSec int
}

// Report is the aggregate outcome of one fan-out.
type Report struct {
	Sent     int
	Failed   int
	Failures []kit.ChatTarget
}

// Service delivers one message to many recipients, rate-limited, with
// per-recipient failure isolation: one failing chat never aborts the batch.
// Delivery order across recipients is not guaranteed to matter; the loop is
// sequential. There is no retry.
type Service struct {
	adapter kit.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// Run sends text to every target and returns the aggregate report.
// A cancelled context stops the loop early; remaining targets count as failed.
func (s *Service) Run(ctx context.Context, name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions) Report {
	start := time.Now()
	s.log.Info("broadcast started", logx.String("name", name), logx.Int("total", len(targets)))

	var rep Report
	for i, t := range targets {
		if err := s.limiter.Wait(ctx); err != nil {
			rep.Failed += len(targets) - i
			s.log.Warn("broadcast cancelled", logx.String("name", name), logx.Err(err))
			break
		}
		if _, err := s.adapter.SendText(ctx, t, text, opt); err != nil {
			rep.Failed++
			if len(rep.Failures) < 200 {
				rep.Failures = append(rep.Failures, t)
			}
			s.log.Warn("broadcast send failed",
				logx.String("name", name),
				logx.Int64("chat_id", t.ChatID),
				logx.Err(err),
			)
			continue
		}
		rep.Sent++
	}

	fields := []logx.Field{
		logx.String("name", name),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return rep
}
