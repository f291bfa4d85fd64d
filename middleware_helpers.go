package identity

import (
	"strings"

	"github.com/goliatone/go-router"
)

type tokenSource int

const (
	tokenFromNone tokenSource = iota
	tokenFromCookie
	tokenFromHeader
)

// tokenExtractor pulls a raw session token out of the request.
type tokenExtractor func(c router.Context) string

func tokenFromCookieNamed(name string) tokenExtractor {
	return func(c router.Context) string {
		return strings.TrimSpace(c.Cookies(name))
	}
}

// tokenFromAuthHeader reads "<scheme> <token>" from the Authorization header.
func tokenFromAuthHeader(scheme string) tokenExtractor {
	scheme = strings.TrimSpace(scheme)
	return func(c router.Context) string {
		a := c.GetString("Authorization", "")
		l := len(scheme)
		if l == 0 {
			return ""
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], scheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:])
		}
		return ""
	}
}

type tokenLocation struct {
	source  tokenSource
	extract tokenExtractor
}

// tokenLocations lists where a session token may be, session cookie first.
func tokenLocations(cfg HTTPConfig) []tokenLocation {
	return []tokenLocation{
		{source: tokenFromCookie, extract: tokenFromCookieNamed(cfg.CookieName)},
		{source: tokenFromHeader, extract: tokenFromAuthHeader(cfg.AuthScheme)},
	}
}
