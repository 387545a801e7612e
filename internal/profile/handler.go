package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"profile-service/internal/auth"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	salutations     = []string{"Mr.", "Ms.", "Mrs."}
	genders         = []string{"Male", "Female", "Other"}
	maritalStatuses = []string{"Single", "Married", "Divorced", "Widowed"}
)

const (
	maxJSONBodyBytes = 1 << 20
	minimumAgeYears  = 17
)

// Store is the persistence contract for profiles.
type Store interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Upsert(ctx context.Context, userID string, input Input) (Profile, bool, error)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Get returns the caller's profile, or empty sections when none has been
// saved yet.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r)

	p, err := h.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusOK, Profile{UserID: userID})
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "error fetching profile data")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	trimInput(&input)
	if msg, ok := validateInput(input); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// Spouse details only make sense for married profiles.
	if input.AdditionalDetails.MaritalStatus != "Married" {
		input.SpouseDetails = SpouseDetails{}
	}

	p, existed, err := h.store.Upsert(r.Context(), auth.UserID(r), input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "error saving profile data")
		return
	}

	status := http.StatusCreated
	message := "profile created successfully"
	if existed {
		status = http.StatusOK
		message = "profile updated successfully"
	}

	writeJSON(w, status, map[string]any{
		"message": message,
		"profile": p,
	})
}

func trimInput(input *Input) {
	input.BasicDetails.Salutation = strings.TrimSpace(input.BasicDetails.Salutation)
	input.BasicDetails.FirstName = strings.TrimSpace(input.BasicDetails.FirstName)
	input.BasicDetails.LastName = strings.TrimSpace(input.BasicDetails.LastName)
	input.BasicDetails.Email = strings.ToLower(strings.TrimSpace(input.BasicDetails.Email))
	input.BasicDetails.ProfileImageURL = strings.TrimSpace(input.BasicDetails.ProfileImageURL)

	input.AdditionalDetails.Address = strings.TrimSpace(input.AdditionalDetails.Address)
	input.AdditionalDetails.Country = strings.TrimSpace(input.AdditionalDetails.Country)
	input.AdditionalDetails.PostalCode = strings.TrimSpace(input.AdditionalDetails.PostalCode)
	input.AdditionalDetails.DOB = strings.TrimSpace(input.AdditionalDetails.DOB)
	input.AdditionalDetails.Gender = strings.TrimSpace(input.AdditionalDetails.Gender)
	input.AdditionalDetails.MaritalStatus = strings.TrimSpace(input.AdditionalDetails.MaritalStatus)

	input.SpouseDetails.Salutation = strings.TrimSpace(input.SpouseDetails.Salutation)
	input.SpouseDetails.FirstName = strings.TrimSpace(input.SpouseDetails.FirstName)
	input.SpouseDetails.LastName = strings.TrimSpace(input.SpouseDetails.LastName)

	input.Preferences.Hobbies = strings.TrimSpace(input.Preferences.Hobbies)
	input.Preferences.Sports = strings.TrimSpace(input.Preferences.Sports)
	input.Preferences.Music = strings.TrimSpace(input.Preferences.Music)
	input.Preferences.Movies = strings.TrimSpace(input.Preferences.Movies)
}

func validateInput(input Input) (string, bool) {
	basic := input.BasicDetails
	if basic.Salutation != "" || basic.FirstName != "" || basic.LastName != "" || basic.Email != "" {
		if basic.Salutation == "" || basic.FirstName == "" || basic.LastName == "" || basic.Email == "" {
			return "if providing basic details, salutation, first name, last name, and email must all be included", false
		}
		if !contains(salutations, basic.Salutation) {
			return "invalid salutation", false
		}
		if len(basic.FirstName) > 50 || len(basic.LastName) > 50 {
			return "name must not exceed 50 characters", false
		}
		if !emailRegex.MatchString(basic.Email) {
			return "invalid email format", false
		}
	}

	additional := input.AdditionalDetails
	if len(additional.Address) > 200 {
		return "address must not exceed 200 characters", false
	}
	if len(additional.Country) > 50 {
		return "country must not exceed 50 characters", false
	}
	if len(additional.PostalCode) > 20 {
		return "postal code must not exceed 20 characters", false
	}
	if additional.Gender != "" && !contains(genders, additional.Gender) {
		return "invalid gender", false
	}
	if additional.MaritalStatus != "" && !contains(maritalStatuses, additional.MaritalStatus) {
		return "invalid marital status", false
	}
	if additional.DOB != "" {
		dob, err := time.Parse("2006-01-02", additional.DOB)
		if err != nil {
			return "invalid date format", false
		}
		if ageYears(dob, time.Now().UTC()) < minimumAgeYears {
			return fmt.Sprintf("must be at least %d years old", minimumAgeYears), false
		}
	}

	spouse := input.SpouseDetails
	if spouse.Salutation != "" && !contains(salutations, spouse.Salutation) {
		return "invalid spouse salutation", false
	}
	if len(spouse.FirstName) > 50 || len(spouse.LastName) > 50 {
		return "spouse name must not exceed 50 characters", false
	}

	prefs := input.Preferences
	if len(prefs.Hobbies) > 500 {
		return "hobbies must not exceed 500 characters", false
	}
	if len(prefs.Sports) > 200 || len(prefs.Music) > 200 || len(prefs.Movies) > 200 {
		return "preference entries must not exceed 200 characters", false
	}

	return "", true
}

func ageYears(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
