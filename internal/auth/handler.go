package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	userIDRegex        = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)
	passwordLetterRune = regexp.MustCompile(`[A-Za-z]`)
	passwordDigitRune  = regexp.MustCompile(`[0-9]`)
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	cookies *CookieWriter
}

func NewHandler(service *Service, cookies *CookieWriter) *Handler {
	return &Handler{service: service, cookies: cookies}
}

type registerRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type loginRequest struct {
	UserID       string `json:"userId"`
	Password     string `json:"password"`
	KeepLoggedIn bool   `json:"keepLoggedIn"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.UserID = strings.TrimSpace(body.UserID)
	if !userIDRegex.MatchString(body.UserID) {
		writeError(w, http.StatusBadRequest, "user id must be 3-50 characters of letters, numbers, underscores, or hyphens")
		return
	}
	if msg, ok := validPassword(body.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.service.Register(r.Context(), body.UserID, body.Password); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			writeError(w, http.StatusConflict, "user id already exists")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.UserID = strings.TrimSpace(body.UserID)
	if body.UserID == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "user id and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), body.UserID, body.Password, body.KeepLoggedIn)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		var lockedErr ErrLoginLocked
		if errors.As(err, &lockedErr) {
			remaining := time.Until(lockedErr.Until)
			retryAfter := int(remaining.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			minutes := int(math.Ceil(remaining.Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusLocked, fmt.Sprintf("account locked. try again in %d minutes", minutes))
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.cookies.Attach(w, session.AccessToken, session.RefreshToken, session.Identity.KeepLoggedIn)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"user":    session.Identity,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, refreshToken := ExtractSession(r)
	if refreshToken == "" {
		writeError(w, http.StatusUnauthorized, "no refresh token provided")
		return
	}

	access, identity, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	h.cookies.AttachAccess(w, access, identity.KeepLoggedIn)
	writeJSON(w, http.StatusOK, map[string]string{"message": "token refreshed successfully"})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	accessToken, _ := ExtractSession(r)
	if accessToken == "" {
		writeError(w, http.StatusUnauthorized, "no token provided")
		return
	}

	identity, err := h.service.Verify(r.Context(), accessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidAccessToken) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to verify token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "token valid",
		"user":    identity,
	})
}

// Logout only clears the client's carriers; bearer tokens have no
// server-side revocation store in this design.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "email address is required")
		return
	}

	if _, err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "an error occurred. please try again")
		return
	}

	// Always acknowledges, so the endpoint cannot be used to enumerate
	// accounts.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if an account exists with this email, a reset link will be sent",
	})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if msg, ok := validPassword(body.Password); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	token := r.PathValue("token")
	if err := h.service.ResetPassword(r.Context(), token, body.Password); err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			writeError(w, http.StatusBadRequest, "invalid or expired reset token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset successfully"})
}

func validPassword(password string) (string, bool) {
	if len(password) < 6 {
		return "password must be at least 6 characters long", false
	}
	if len(password) > 200 {
		return "password is too long", false
	}
	if !passwordLetterRune.MatchString(password) || !passwordDigitRune.MatchString(password) {
		return "password must contain at least one letter and one number", false
	}
	return "", true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
