// Package httpauth surfaces bearer-token transport credentials as opaque
// metadata: a keyring-backed store for the token string and a
// WWW-Authenticate challenge parser so a caller can discover where to
// obtain one. Per the core's Non-goal ("multi-tenant authentication… auth
// is treated as transport metadata the core surfaces but does not
// interpret"), this package never performs an OAuth flow itself — it only
// stores/retrieves an opaque token and reads the Bearer challenge a 401
// carries, grounded on the donor's internal/oauth/{keyring_store.go,
// wwwauthenticate.go}.
package httpauth

import (
	"net/http"
	"strings"
)

// BearerChallenge holds the RFC 6750/9728 Bearer challenge parameters a
// 401 response's WWW-Authenticate header carries: where to discover
// protected-resource metadata, the realm, and the requested scope.
type BearerChallenge struct {
	ResourceMetadata string
	Realm            string
	Scope            string
}

// ParseBearerChallenge scans every WWW-Authenticate header value for a
// Bearer challenge and returns its parameters, or nil if none is present.
func ParseBearerChallenge(headers http.Header) *BearerChallenge {
	return ParseBearerChallengeValues(headers.Values("WWW-Authenticate"))
}

// ParseBearerChallengeValues is the testable core of ParseBearerChallenge.
func ParseBearerChallengeValues(values []string) *BearerChallenge {
	for _, value := range values {
		if ch := parseBearerChallenge(value); ch != nil {
			return ch
		}
	}
	return nil
}

// parseBearerChallenge makes one left-to-right pass over a
// WWW-Authenticate value. A value may list several comma-separated
// challenges ("Basic realm=x, Bearer realm=y, scope=z"); this is only
// asked to surface the Bearer one, so it tracks a single "currently
// inside Bearer's params" flag rather than building a generic challenge
// list: a bare word (one not immediately followed by '=') starts a new
// scheme and flips that flag, and only while it's set do name=value pairs
// get copied into the result.
func parseBearerChallenge(value string) *BearerChallenge {
	i, n := 0, len(value)
	var ch *BearerChallenge
	inBearer := false

	for i < n {
		i = skipSpaceOrComma(value, i)
		if i >= n {
			break
		}

		word, next := readAuthToken(value, i)
		if word == "" {
			i++
			continue
		}
		afterWord := skipSpace(value, next)

		if afterWord >= n || value[afterWord] != '=' {
			inBearer = strings.EqualFold(word, "bearer")
			if inBearer && ch == nil {
				ch = &BearerChallenge{}
			}
			i = next
			continue
		}

		valueStart := skipSpace(value, afterWord+1)
		val, after := readAuthParamValue(value, valueStart)
		i = after

		if inBearer && ch != nil {
			switch strings.ToLower(word) {
			case "realm":
				ch.Realm = val
			case "resource_metadata":
				ch.ResourceMetadata = val
			case "scope":
				ch.Scope = val
			}
		}
	}
	return ch
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

func skipSpaceOrComma(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
		i++
	}
	return i
}

// readAuthToken reads one RFC 7235 token (a scheme name or a param name)
// starting at i.
func readAuthToken(s string, i int) (string, int) {
	start := i
	for i < len(s) && isTokenChar(s[i]) {
		i++
	}
	return s[start:i], i
}

// readAuthParamValue reads one auth-param value at i: a quoted-string
// with backslash escapes, or a bare token running up to the next comma.
func readAuthParamValue(s string, i int) (string, int) {
	if i < len(s) && s[i] == '"' {
		return readQuotedString(s, i)
	}
	start := i
	for i < len(s) && s[i] != ',' {
		i++
	}
	return strings.TrimSpace(s[start:i]), i
}

func readQuotedString(s string, i int) (string, int) {
	i++ // opening quote
	var b strings.Builder
	for i < len(s) {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			b.WriteByte(s[i+1])
			i += 2
		case s[i] == '"':
			return b.String(), i + 1
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), i
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
