package resilience

import "time"

// RetryPolicy re-runs a short operation on a fixed backoff. It covers
// connection setup, like dialing the synthesis websocket, where a second
// attempt usually succeeds; longer operations carry their own retry logic.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn up to MaxRetries+1 times, sleeping Backoff between attempts,
// and returns the last error when every attempt fails.
func (r RetryPolicy) Do(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt == r.MaxRetries {
			return err
		}
		time.Sleep(r.Backoff)
	}
}
