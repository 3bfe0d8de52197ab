package github

import (
	"net/http"
	"strconv"
	"time"
)

const (
	// resetBuffer is added to the reported reset time before requests resume.
	resetBuffer = 1 * time.Second

	// defaultRateLimitWait applies when a rate limited response carries no
	// timing headers.
	defaultRateLimitWait = 60 * time.Second
)

// quota is the primary rate limit state reported in GitHub response headers.
type quota struct {
	remaining int
	known     bool // remaining was reported
	reset     time.Time
}

// parseQuota reads X-RateLimit-Remaining and X-RateLimit-Reset. ok is false
// when neither header is present.
func parseQuota(resp *http.Response) (q quota, ok bool) {
	if resp == nil {
		return quota{}, false
	}
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	reset := resp.Header.Get("X-RateLimit-Reset")
	if remaining == "" && reset == "" {
		return quota{}, false
	}
	if n, err := strconv.Atoi(remaining); err == nil {
		q.remaining, q.known = n, true
	}
	if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
		q.reset = time.Unix(unix, 0)
	}
	return q, true
}

// exhausted reports whether no requests remain in the current window.
func (q quota) exhausted() bool {
	return q.known && q.remaining <= 0
}

// resumeAt is the reset time plus resetBuffer, or zero without a reset time.
func (q quota) resumeAt() time.Time {
	if q.reset.IsZero() {
		return time.Time{}
	}
	return q.reset.Add(resetBuffer)
}

// outcome says how Host.call treats a failed response.
type outcome int

const (
	// retryable covers network failures and 5xx responses.
	retryable outcome = iota
	// rateLimited responses pause the credential's budget, then retry.
	rateLimited
	// permanent client errors are returned without retrying.
	permanent
)

// classify maps a failed response to an outcome. A nil response means the
// request never completed.
func classify(resp *http.Response) outcome {
	if resp == nil {
		return retryable
	}
	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return rateLimited
	case code == http.StatusForbidden:
		// Secondary limits send Retry-After; a plain 403 is a permission error.
		if resp.Header.Get("Retry-After") != "" {
			return rateLimited
		}
		if q, ok := parseQuota(resp); ok && q.exhausted() {
			return rateLimited
		}
		return permanent
	case code >= 400 && code < 500:
		return permanent
	default:
		return retryable
	}
}

// rateLimitResume returns when a rate limited request may be retried: the
// reported reset if it is still ahead, else Retry-After, else a minute.
func rateLimitResume(resp *http.Response, now time.Time) time.Time {
	if q, ok := parseQuota(resp); ok {
		if at := q.resumeAt(); at.After(now.Add(resetBuffer)) {
			return at
		}
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	return now.Add(defaultRateLimitWait)
}
