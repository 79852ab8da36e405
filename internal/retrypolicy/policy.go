// Package retrypolicy computes the next-attempt delay and terminal
// decision for a classified delivery or compute outcome, as a pure
// function of outcome class and attempt count. Centralizing this here
// (instead of scattering backoff arithmetic across dispatch decorators)
// lets the full (class, attempts, max_attempts) Cartesian product be
// exhaustively unit-tested.
package retrypolicy

import (
	"math/rand/v2"
	"time"
)

// OutcomeClass classifies the result of a delivery or compute attempt.
type OutcomeClass string

const (
	ClassSuccess2xx          OutcomeClass = "success_2xx"
	ClassClientPermanent4xx  OutcomeClass = "client_4xx_permanent"
	ClassClientRetriable4xx  OutcomeClass = "client_4xx_retriable"
	ClassServer5xx           OutcomeClass = "server_5xx"
	ClassTimeout             OutcomeClass = "timeout"
	ClassConnectionError     OutcomeClass = "connection_error"
	ClassInvalidURL          OutcomeClass = "invalid_url"
)

// Verdict is the terminal decision kind returned by Decide.
type Verdict string

const (
	VerdictCompleteSuccess Verdict = "complete_success"
	VerdictScheduleRetry   Verdict = "schedule_retry"
	VerdictFailPermanent   Verdict = "fail_permanent"
)

// Decision is the output of the Retry Policy Engine.
type Decision struct {
	Verdict Verdict
	// Delay is populated only when Verdict == VerdictScheduleRetry.
	Delay time.Duration
}

// Params tunes the backoff formula. Delivery and compute each supply
// their own Params, since delivery and compute retries are tuned
// independently.
type Params struct {
	BaseMin time.Duration
	Cap     time.Duration
}

// DefaultDeliveryParams: base_min=30s, cap=300s.
var DefaultDeliveryParams = Params{BaseMin: 30 * time.Second, Cap: 300 * time.Second}

// DefaultComputeParams: identical shape to delivery, separately named
// so compute and delivery can diverge independently later.
var DefaultComputeParams = Params{BaseMin: 30 * time.Second, Cap: 300 * time.Second}

// Decide computes the next action for an outcome, given the current
// attempt count (attempts already made, including this one) and the
// configured ceiling. The backoff formula in §4.4 is keyed off the
// attempt count *before* this attempt was made (the first retry is
// 2^0, the second is 2^1, ...), so the delay is computed from
// attempts-1, one less than the terminal check's post-increment count.
func Decide(class OutcomeClass, attempts, maxAttempts int, p Params) Decision {
	switch class {
	case ClassSuccess2xx:
		return Decision{Verdict: VerdictCompleteSuccess}
	case ClassInvalidURL, ClassClientPermanent4xx:
		return Decision{Verdict: VerdictFailPermanent}
	case ClassClientRetriable4xx, ClassServer5xx, ClassTimeout, ClassConnectionError:
		if attempts >= maxAttempts {
			return Decision{Verdict: VerdictFailPermanent}
		}
		return Decision{Verdict: VerdictScheduleRetry, Delay: backoffWithJitter(attempts-1, p)}
	default:
		// Unknown classes are treated as permanent failures: an
		// unrecognized outcome must never retry forever.
		return Decision{Verdict: VerdictFailPermanent}
	}
}

// backoffWithJitter computes base = min(cap, base_min * 2^attempts) and
// returns a uniform random value in [0.5*base, 1.5*base].
func backoffWithJitter(attempts int, p Params) time.Duration {
	base := computeBase(attempts, p)
	lo := float64(base) * 0.5
	hi := float64(base) * 1.5
	jittered := lo + rand.Float64()*(hi-lo)
	return time.Duration(jittered)
}

func computeBase(attempts int, p Params) time.Duration {
	base := p.BaseMin
	for range attempts {
		base *= 2
		if base > p.Cap {
			return p.Cap
		}
	}
	if base > p.Cap {
		return p.Cap
	}
	return base
}

// ClassifyHTTPStatus maps an HTTP status code to an OutcomeClass per
// a smaller table of HTTP status codes.
func ClassifyHTTPStatus(code int) OutcomeClass {
	switch code {
	case 400, 401, 403, 404, 410, 413, 415, 422:
		return ClassClientPermanent4xx
	case 408, 425, 429:
		return ClassClientRetriable4xx
	}
	switch {
	case code >= 200 && code < 300:
		return ClassSuccess2xx
	case code >= 500:
		return ClassServer5xx
	case code >= 400 && code < 500:
		// Any other 4xx not explicitly classified above is treated as
		// permanent: receivers rejecting the request outright are
		// unlikely to accept an identical retry.
		return ClassClientPermanent4xx
	}
	return ClassServer5xx
}
