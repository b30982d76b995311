package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Session holds the client-stored state for one advice-service origin:
// a cookie jar plus the name of the cookie carrying the anti-forgery token.
// The token is read from the jar on every mutating call, so a rotated
// cookie is picked up without re-priming.
type Session struct {
	base       *url.URL
	cookieName string
	jar        *cookiejar.Jar
}

func NewSession(baseURL, cookieName string) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Session{base: base, cookieName: cookieName, jar: jar}, nil
}

// Jar exposes the cookie jar for the HTTP client.
func (s *Session) Jar() http.CookieJar { return s.jar }

// Token returns the current anti-forgery token, or "" when the session has
// not been primed yet.
func (s *Session) Token() string {
	for _, c := range s.jar.Cookies(s.base) {
		if c.Name == s.cookieName {
			return c.Value
		}
	}
	return ""
}

// SetToken seeds the token directly, for callers that already hold one
// (tests, or a token handed over by another client).
func (s *Session) SetToken(value string) {
	s.jar.SetCookies(s.base, []*http.Cookie{{
		Name:  s.cookieName,
		Value: value,
		Path:  "/",
	}})
}
