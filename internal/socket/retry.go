package socket

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DialWithRetry wraps Dial with a bounded exponential backoff, for the
// startup window where the configured interface may not have finished
// coming up yet (join failures there are transient, unlike the runtime
// socket errors in §7, which are terminal once the service is running).
func DialWithRetry(ctx context.Context, cfg Config) (*Conn, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 30 * time.Second
	bo.RandomizationFactor = 0

	var conn *Conn
	op := func() error {
		c, err := Dial(cfg)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}
