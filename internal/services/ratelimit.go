package services

import (
	"context"
	"time"

	"huixiang/internal/apperr"
	"huixiang/internal/config"
	"huixiang/internal/identity"
	"huixiang/internal/logger"

	"github.com/sirupsen/logrus"
)

// WindowCounter 统计某时间点之后由某身份或某来源写入的记录数。
// 窗口每次从已存储的时间戳现算，不单独维护计数器。
type WindowCounter interface {
	CountByIdentitySince(ctx context.Context, id identity.Identity, since time.Time) (int64, error)
	CountByOriginSince(ctx context.Context, origin string, since time.Time) (int64, error)
}

// RateLimiter 滑动窗口限流。
// 先查后写，同一身份的并发请求可能略微超过上限，这是可接受的。
type RateLimiter struct {
	counter WindowCounter
	window  time.Duration
	ceiling int64
	now     func() time.Time
}

func NewRateLimiter(counter WindowCounter, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		window:  cfg.Window,
		ceiling: cfg.Ceiling,
		now:     time.Now,
	}
}

// WithClock 替换时钟，测试用
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Check 身份与来源分别计数，任一达到上限即拒绝。空身份或空来源跳过对应检查。
func (l *RateLimiter) Check(ctx context.Context, id identity.Identity, origin string) error {
	since := l.now().UTC().Add(-l.window)

	if !id.IsZero() {
		n, err := l.counter.CountByIdentitySince(ctx, id, since)
		if err != nil {
			return err
		}
		if n >= l.ceiling {
			logger.For(ctx).WithFields(logrus.Fields{"identity": id.Key(), "count": n}).Warn("rate limited by identity")
			return apperr.TooManyRequests("too many requests, please slow down")
		}
	}

	if origin != "" {
		n, err := l.counter.CountByOriginSince(ctx, origin, since)
		if err != nil {
			return err
		}
		if n >= l.ceiling {
			logger.For(ctx).WithFields(logrus.Fields{"origin": origin, "count": n}).Warn("rate limited by origin")
			return apperr.TooManyRequests("too many requests, please slow down")
		}
	}
	return nil
}
