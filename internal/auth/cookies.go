package auth

import (
	"net/http"
	"time"
)

const (
	AccessCookieName  = "token"
	RefreshCookieName = "refresh_token"
)

// CookieWriter maps session tokens onto their HTTP cookie carriers. Secure
// deployments get Secure + SameSite=None cookies so the client can be served
// from another origin; insecure (local) deployments fall back to Lax because
// browsers refuse SameSite=None without the Secure flag.
type CookieWriter struct {
	secure          bool
	accessTTL       time.Duration
	keepLoggedInTTL time.Duration
	refreshTTL      time.Duration
}

func NewCookieWriter(secure bool, accessTTL, keepLoggedInTTL, refreshTTL time.Duration) *CookieWriter {
	return &CookieWriter{
		secure:          secure,
		accessTTL:       accessTTL,
		keepLoggedInTTL: keepLoggedInTTL,
		refreshTTL:      refreshTTL,
	}
}

// Attach sets both carriers with max-ages matching the token TTL tiers.
func (c *CookieWriter) Attach(w http.ResponseWriter, accessToken, refreshToken string, keepLoggedIn bool) {
	c.AttachAccess(w, accessToken, keepLoggedIn)
	http.SetCookie(w, c.build(RefreshCookieName, refreshToken, int(c.refreshTTL.Seconds())))
}

func (c *CookieWriter) AttachAccess(w http.ResponseWriter, accessToken string, keepLoggedIn bool) {
	ttl := c.accessTTL
	if keepLoggedIn {
		ttl = c.keepLoggedInTTL
	}
	http.SetCookie(w, c.build(AccessCookieName, accessToken, int(ttl.Seconds())))
}

// Clear removes both carriers. The cookies are built by the same constructor
// as Attach so the attributes always match; a browser only drops a cookie
// when the clearing attributes agree with the ones it was set with.
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.build(AccessCookieName, "", -1))
	http.SetCookie(w, c.build(RefreshCookieName, "", -1))
}

func (c *CookieWriter) build(name, value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if c.secure {
		sameSite = http.SameSiteNoneMode
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: sameSite,
	}
}

// ExtractSession reads both carriers from a request without validating
// signatures; validation belongs to the token issuer.
func ExtractSession(r *http.Request) (accessToken, refreshToken string) {
	if cookie, err := r.Cookie(AccessCookieName); err == nil {
		accessToken = cookie.Value
	}
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		refreshToken = cookie.Value
	}
	return accessToken, refreshToken
}
