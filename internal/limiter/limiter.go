// Package limiter defines interfaces and implementations for webhook
// fulfillment rate limiting. It guards the handshake broker against `/start`
// storms from a single platform identity.
package limiter

import (
	"context"
	"time"
)

// Limiter controls fulfillment attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether fulfillment is currently allowed and optional retry-after.
	Allow(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful fulfillment.
	Success(ctx context.Context, subject string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, subject string, ipHash []byte) (bool, time.Duration, error)
}
