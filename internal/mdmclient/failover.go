package mdmclient

import (
	"context"
	"errors"
	"fmt"
)

// Pair is the primary server and its optional fallback.
type Pair struct {
	Primary   *Client
	Secondary *Client
}

// Failover calls fn against the primary server and, only when that fails,
// against the secondary. The secondary is never tried first.
func Failover[T any](ctx context.Context, p Pair, fn func(context.Context, *Client) (T, error)) (T, error) {
	var zero T
	if p.Primary == nil {
		return zero, errors.New("no primary server configured")
	}
	v, err := fn(ctx, p.Primary)
	if err == nil {
		return v, nil
	}
	if p.Secondary == nil || ctx.Err() != nil {
		return zero, fmt.Errorf("primary: %w", err)
	}
	p.Primary.logger.Warn().Err(err).Str("fallback", p.Secondary.base).Msg("primary server failed, trying secondary")

	v, err2 := fn(ctx, p.Secondary)
	if err2 == nil {
		return v, nil
	}
	return zero, errors.Join(fmt.Errorf("primary: %w", err), fmt.Errorf("secondary: %w", err2))
}
