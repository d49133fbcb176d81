// Package credentials normalizes RTSP source URLs whose password
// component may contain reserved characters (spec §4.2, scenario S1).
//
// Grounded on the original Python source's
// StreamManager._encode_rtsp_url (original_source/src/streaming/
// manager.py) and re-expressed per spec: parse by matching the LAST
// credential separator before the host/port (so a password itself
// containing '@' doesn't truncate the match), decode any existing
// percent-encoding once, then percent-encode every reserved character in
// the password.
package credentials

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeSourceURL rewrites rawURL so its password component is
// percent-encoded exactly once, regardless of how many reserved
// characters (@, !, #, $, etc.) or how much existing percent-encoding it
// already carries. Non-credential components are left untouched.
func NormalizeSourceURL(rawURL string) (string, error) {
	scheme, user, password, rest, err := splitCredentials(rawURL)
	if err != nil {
		return "", err
	}
	if user == "" && password == "" {
		return rawURL, nil
	}

	decodedPassword := decodeOnce(password)
	encodedPassword := encodeReserved(decodedPassword)

	return fmt.Sprintf("%s%s:%s@%s", scheme, user, encodedPassword, rest), nil
}

// HostPort extracts the host and port to dial for a reachability check,
// stripping credentials via the same last-"@" split NormalizeSourceURL
// uses before handing the remainder to net/url. Parsing host/port on the
// raw credentialed URL (net/url.Parse on the whole string) is unsafe:
// a password containing "@" or "#" corrupts authority/fragment parsing
// exactly the way scenario S1's password does, which is why this goes
// through splitCredentials first instead.
func HostPort(rawURL string) (host, port string, err error) {
	scheme, _, _, rest, err := splitCredentials(rawURL)
	if err != nil {
		return "", "", err
	}
	u, err := url.Parse(scheme + rest)
	if err != nil {
		return "", "", err
	}
	host = u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("credentials: no host in source URL")
	}
	return host, u.Port(), nil
}

// splitCredentials finds the LAST "@" in the URL (before the host/port),
// since the password itself may contain "@". Everything between the
// scheme and that last "@" is "user:password"; the password is
// everything after the FIRST ":" in that substring, since the user name
// is assumed not to contain ":".
func splitCredentials(rawURL string) (scheme, user, password, rest string, err error) {
	scheme = ""
	remainder := rawURL
	if idx := strings.Index(rawURL, "://"); idx >= 0 {
		scheme = rawURL[:idx+3]
		remainder = rawURL[idx+3:]
	}

	lastAt := strings.LastIndex(remainder, "@")
	if lastAt < 0 {
		return scheme, "", "", remainder, nil
	}

	credentials := remainder[:lastAt]
	rest = remainder[lastAt+1:]

	colon := strings.Index(credentials, ":")
	if colon < 0 {
		return scheme, credentials, "", rest, nil
	}
	user = credentials[:colon]
	password = credentials[colon+1:]
	return scheme, user, password, rest, nil
}

// decodeOnce percent-decodes password if it looks percent-encoded,
// avoiding double-encoding on a retry; if it doesn't parse as encoded, it
// is returned unchanged (it wasn't encoded yet).
func decodeOnce(password string) string {
	if decoded, err := url.PathUnescape(password); err == nil {
		return decoded
	}
	return password
}

// encodeReserved percent-encodes every character the RTSP URL's userinfo
// production can't carry literally. url.QueryEscape is close but escapes
// space as "+"; RTSP userinfo needs %20, so do it by hand with the
// userinfo reserved set (RFC 3986 §3.2.1) plus the exact characters
// scenario S1 exercises.
func encodeReserved(password string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(password); i++ {
		c := password[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	default:
		return false
	}
}
