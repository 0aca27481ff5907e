package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/AngelCh415/funnel-insights/internal/utils"
)

var retryPolicy = utils.NewBackoff(100*time.Millisecond, 2)

// GetJSONWithRetry retries transport errors, 429 and 5xx with exponential
// backoff and jitter. Other 4xx answers fail immediately.
func GetJSONWithRetry(ctx context.Context, c HTTPClient, url string, dst any) error {
	return retryPolicy.Do(ctx, func(int) error {
		err := getJSON(ctx, c, url, dst)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return utils.Permanent(err)
		}
		if errors.Is(err, errEmptyURL) {
			return utils.Permanent(err)
		}
		return err
	})
}
