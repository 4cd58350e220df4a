package crawl

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

func newRestartBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry forever
	return bo
}

// Supervise runs a background loop until ctx is cancelled, restarting it
// with exponential backoff when it fails. The loops only return errors on
// database trouble; a healthy loop runs until shutdown and exits nil.
func Supervise(ctx context.Context, name string, run func(context.Context) error) error {
	bo := newRestartBackoff()
	return backoff.Retry(func() error {
		err := run(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithField("worker", name).WithError(err).Error("worker failed, restarting")
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
