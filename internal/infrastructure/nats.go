package infrastructure

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"
)

// connectNats dials with fibonacci backoff: NATS often comes up a beat
// after the service in compose-style deployments.
func connectNats(ctx context.Context, url string) (*nats.Conn, error) {
	var nc *nats.Conn

	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		nc, err = nats.Connect(url)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return nc, nil
}
