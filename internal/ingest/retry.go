package ingest

import "time"

// backoffDelay implements the Phase A/B/C retry state machine from spec
// §4.2: attempts are 1-indexed.
//
//	Phase A (quick):     attempts 1..10,  delay = clamp(3 + 2*(n-1), <=30s)
//	Phase B (extended):  attempts 11..30, delay = 60s
//	Phase C (long-term): attempts >=31,   delay = 300s
func backoffDelay(attempt int) time.Duration {
	switch {
	case attempt <= 10:
		d := 3 + 2*(attempt-1)
		if d > 30 {
			d = 30
		}
		return time.Duration(d) * time.Second
	case attempt <= 30:
		return 60 * time.Second
	default:
		return 300 * time.Second
	}
}

// stableResetThreshold is the continuous-uptime duration (spec §4.2)
// after which a camera's retry counter resets to zero.
const stableResetThreshold = 120 * time.Second
