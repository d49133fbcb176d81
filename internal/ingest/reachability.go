package ingest

import (
	"net"
	"time"

	"github.com/beachvar/stream-supervisor/internal/credentials"
)

const reachabilityTimeout = 5 * time.Second

// checkReachable performs the TCP reachability pre-check from spec §4.2:
// a short connect to the source's host/port (default 554) before a
// restart spawn, so an off camera doesn't burn the retry budget.
//
// Host/port are extracted via credentials.HostPort rather than a direct
// url.Parse on sourceURL, since a credentialed source URL (scenario
// S1's password containing "@"/"#") corrupts net/url's own authority
// parsing.
func checkReachable(sourceURL string) bool {
	host, port, err := credentials.HostPort(sourceURL)
	if err != nil {
		return false
	}
	if port == "" {
		port = "554"
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, port), reachabilityTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
