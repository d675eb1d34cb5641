// Package api implements the JSON REST handlers of the BTW Desk API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/btwdesk/api/internal/auth"
	"github.com/btwdesk/api/internal/btw"
	"github.com/btwdesk/api/internal/services/account"
	"github.com/btwdesk/api/internal/services/client"
	"github.com/btwdesk/api/internal/services/declaration"
	"github.com/btwdesk/api/internal/services/journal"
	"github.com/btwdesk/api/internal/storage"
)

// maxBodyBytes bounds request bodies; an import of a few thousand lines fits.
const maxBodyBytes = 4 << 20

type errorJSON struct {
	Error string `json:"error"`
}

type validationErrorJSON struct {
	Error    string   `json:"error"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// decodeJSON reads the request body into v. It writes a 400 and returns
// false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorJSON{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid request body"})
		return false
	}
	return true
}

// pathUUID parses the named path value. It writes a 400 and returns false
// when the value is not a UUID.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// parsePeriod builds a period key from a year, a period type and a number.
// The type accepts English and Dutch names; for yearly periods the number
// may be omitted.
func parsePeriod(clientID uuid.UUID, year, periodType, number string) (btw.PeriodKey, error) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return btw.PeriodKey{}, errors.Join(btw.ErrInvalidPeriod, errors.New("year must be a number"))
	}
	pt, err := btw.ParsePeriodType(periodType)
	if err != nil {
		return btw.PeriodKey{}, err
	}
	n := 1
	if strings.TrimSpace(number) != "" || pt != btw.PeriodYear {
		n, err = strconv.Atoi(strings.TrimSpace(number))
		if err != nil {
			return btw.PeriodKey{}, errors.Join(btw.ErrInvalidPeriod, errors.New("period number must be a number"))
		}
	}
	key := btw.PeriodKey{ClientID: clientID, Year: y, Type: pt, Number: n}
	if err := key.Validate(); err != nil {
		return btw.PeriodKey{}, err
	}
	return key, nil
}

// writeServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500 without details.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *journal.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, validationErrorJSON{
			Error:    "journal line failed validation",
			Errors:   nonNil(verr.Result.Errors),
			Warnings: nonNil(verr.Result.Warnings),
		})
		return
	}

	if btw.IsPrecondition(err) {
		writeJSON(w, http.StatusConflict, errorJSON{Error: err.Error()})
		return
	}

	switch {
	case errors.Is(err, client.ErrNotFound),
		errors.Is(err, declaration.ErrClientNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, journal.ErrNotFound),
		errors.Is(err, btw.ErrDeclarationNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorJSON{Error: err.Error()})

	case errors.Is(err, btw.ErrInvalidPeriod),
		errors.Is(err, client.ErrNameRequired),
		errors.Is(err, client.ErrInvalidFrequency),
		errors.Is(err, account.ErrNumberRequired),
		errors.Is(err, account.ErrInvalidCategory),
		errors.Is(err, journal.ErrDateRequired),
		errors.Is(err, auth.ErrEmptyPassword),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordTooLong):
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})

	case errors.Is(err, account.ErrNumberTaken),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrTOTPAlreadySetup),
		errors.Is(err, auth.ErrTOTPNotSetup):
		writeJSON(w, http.StatusConflict, errorJSON{Error: err.Error()})

	case errors.Is(err, auth.ErrTOTPRequired):
		writeJSON(w, http.StatusUnauthorized, struct {
			Error        string `json:"error"`
			TOTPRequired bool   `json:"totp_required"`
		}{err.Error(), true})

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidTOTPCode),
		errors.Is(err, auth.ErrInvalidRecoveryCode):
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: err.Error()})

	case errors.Is(err, auth.ErrUserInactive):
		writeJSON(w, http.StatusForbidden, errorJSON{Error: err.Error()})

	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorJSON{Error: "internal server error"})
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
