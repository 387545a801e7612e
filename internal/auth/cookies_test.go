package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testCookieWriter(secure bool) *CookieWriter {
	return NewCookieWriter(secure, 24*time.Hour, 365*24*time.Hour, 90*24*time.Hour)
}

func recordedCookies(t *testing.T, write func(w http.ResponseWriter)) map[string]*http.Cookie {
	t.Helper()

	recorder := httptest.NewRecorder()
	write(recorder)

	cookies := make(map[string]*http.Cookie)
	for _, cookie := range recorder.Result().Cookies() {
		cookies[cookie.Name] = cookie
	}
	return cookies
}

func TestAttachSetsBothCarriers(t *testing.T) {
	writer := testCookieWriter(false)

	cookies := recordedCookies(t, func(w http.ResponseWriter) {
		writer.Attach(w, "access-value", "refresh-value", false)
	})

	access, ok := cookies[AccessCookieName]
	if !ok {
		t.Fatal("access carrier not set")
	}
	refresh, ok := cookies[RefreshCookieName]
	if !ok {
		t.Fatal("refresh carrier not set")
	}

	if access.Value != "access-value" || refresh.Value != "refresh-value" {
		t.Fatalf("carrier values access=%q refresh=%q", access.Value, refresh.Value)
	}
	if access.MaxAge != int((24 * time.Hour).Seconds()) {
		t.Fatalf("access max-age = %d, want 1 day", access.MaxAge)
	}
	if refresh.MaxAge != int((90 * 24 * time.Hour).Seconds()) {
		t.Fatalf("refresh max-age = %d, want 90 days", refresh.MaxAge)
	}
	for _, cookie := range []*http.Cookie{access, refresh} {
		if !cookie.HttpOnly {
			t.Fatalf("%s carrier must be HttpOnly", cookie.Name)
		}
		if cookie.Secure {
			t.Fatalf("%s carrier must not be Secure outside production", cookie.Name)
		}
		if cookie.SameSite != http.SameSiteLaxMode {
			t.Fatalf("%s carrier SameSite = %v, want Lax", cookie.Name, cookie.SameSite)
		}
		if cookie.Path != "/" {
			t.Fatalf("%s carrier path = %q, want /", cookie.Name, cookie.Path)
		}
	}
}

func TestAttachKeepLoggedInTier(t *testing.T) {
	writer := testCookieWriter(false)

	cookies := recordedCookies(t, func(w http.ResponseWriter) {
		writer.Attach(w, "access-value", "refresh-value", true)
	})

	if got := cookies[AccessCookieName].MaxAge; got != int((365 * 24 * time.Hour).Seconds()) {
		t.Fatalf("access max-age = %d, want 365 days", got)
	}
	// The refresh tier never varies.
	if got := cookies[RefreshCookieName].MaxAge; got != int((90 * 24 * time.Hour).Seconds()) {
		t.Fatalf("refresh max-age = %d, want 90 days", got)
	}
}

func TestSecureModeAttributes(t *testing.T) {
	writer := testCookieWriter(true)

	cookies := recordedCookies(t, func(w http.ResponseWriter) {
		writer.Attach(w, "access-value", "refresh-value", false)
	})

	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := cookies[name]
		if !cookie.Secure {
			t.Fatalf("%s carrier must be Secure in production", name)
		}
		if cookie.SameSite != http.SameSiteNoneMode {
			t.Fatalf("%s carrier SameSite = %v, want None", name, cookie.SameSite)
		}
	}
}

// Clearing with attributes that differ from the ones used to set is a known
// bug class: the browser keeps the cookie. Set and clear must agree on
// everything except value and max-age.
func TestClearMatchesAttachAttributes(t *testing.T) {
	for _, secure := range []bool{false, true} {
		writer := testCookieWriter(secure)

		set := recordedCookies(t, func(w http.ResponseWriter) {
			writer.Attach(w, "access-value", "refresh-value", false)
		})
		cleared := recordedCookies(t, func(w http.ResponseWriter) {
			writer.Clear(w)
		})

		for _, name := range []string{AccessCookieName, RefreshCookieName} {
			before, after := set[name], cleared[name]
			if after == nil {
				t.Fatalf("secure=%v: %s carrier not cleared", secure, name)
			}
			if after.Value != "" {
				t.Fatalf("secure=%v: cleared %s carrier still has a value", secure, name)
			}
			if after.MaxAge >= 0 {
				t.Fatalf("secure=%v: cleared %s carrier max-age = %d, want negative", secure, name, after.MaxAge)
			}
			if before.Path != after.Path ||
				before.HttpOnly != after.HttpOnly ||
				before.Secure != after.Secure ||
				before.SameSite != after.SameSite {
				t.Fatalf("secure=%v: %s carrier attributes differ between set and clear", secure, name)
			}
		}
	}
}

func TestExtractSessionReadsWithoutValidating(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	r.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "not-even-a-jwt"})
	r.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "also-opaque"})

	access, refresh := ExtractSession(r)
	if access != "not-even-a-jwt" || refresh != "also-opaque" {
		t.Fatalf("extracted access=%q refresh=%q", access, refresh)
	}

	empty := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	access, refresh = ExtractSession(empty)
	if access != "" || refresh != "" {
		t.Fatalf("expected empty carriers, got access=%q refresh=%q", access, refresh)
	}
}
