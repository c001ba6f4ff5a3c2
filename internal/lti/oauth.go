package lti

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 signature method
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const signatureMethod = "HMAC-SHA1"

// Sign computes the OAuth 1.0a HMAC-SHA1 signature of a request. Query parameters
// of rawURL are signed together with params. oauth_signature is never signed.
func Sign(method, rawURL string, params map[string]string, consumerSecret string) (string, error) {
	base, err := SignatureBaseString(method, rawURL, params)
	if err != nil {
		return "", err
	}

	key := percentEncode(consumerSecret) + "&"
	mac := hmac.New(sha1.New, []byte(key))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether params carry a valid oauth_signature for the request.
func Verify(method, rawURL string, params map[string]string, consumerSecret string) bool {
	got, ok := params["oauth_signature"]
	if !ok {
		return false
	}
	want, err := Sign(method, rawURL, params, consumerSecret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(got), []byte(want))
}

// SignatureBaseString builds METHOD&url&params with RFC 3986 encoding, the URL
// normalised and the parameters sorted by encoded name then value.
func SignatureBaseString(method, rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("lti: parse launch url: %w", err)
	}

	type pair struct{ k, v string }
	var pairs []pair
	for name, values := range u.Query() {
		for _, value := range values {
			pairs = append(pairs, pair{percentEncode(name), percentEncode(value)})
		}
	}
	for name, value := range params {
		if name == "oauth_signature" {
			continue
		}
		pairs = append(pairs, pair{percentEncode(name), percentEncode(value)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = p.k + "=" + p.v
	}

	return strings.ToUpper(method) + "&" +
		percentEncode(normaliseURL(u)) + "&" +
		percentEncode(strings.Join(encoded, "&")), nil
}

func normaliseURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host += ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// percentEncode applies RFC 3986 encoding: only unreserved characters stay as-is.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}
