// Package retry 提供了一个围绕外部调用组合使用的显式重试策略。
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy 描述一次重试策略：固定间隔退避，最多重试 MaxRetries 次。
type Policy struct {
	MaxRetries uint64
	Interval   time.Duration
}

// RateLimited 是限流场景的标准策略：固定 60 秒退避，只重试一次。
func RateLimited() Policy {
	return Policy{MaxRetries: 1, Interval: 60 * time.Second}
}

// Do 按策略执行 op。retryable 返回 false 的错误视为永久错误，立即返回不再重试。
func Do(ctx context.Context, policy Policy, retryable func(error) bool, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), policy.MaxRetries),
		ctx,
	)
	return backoff.Retry(wrapped, b)
}
