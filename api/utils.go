package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/app"
	"longentry/database"
)

// maxBodyBytes bounds request bodies; a year of hourly candles fits.
const maxBodyBytes = 4 << 20

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Warn().Err(err).Int("status", code).Msg(message)
	} else {
		log.Debug().Int("status", code).Msg(message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// respondWithServiceError maps service errors onto status codes.
func respondWithServiceError(w http.ResponseWriter, err error) {
	var notFound *database.NotFoundError
	var invalid *database.ValidationError
	switch {
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, notFound.Error(), nil)
	case errors.As(err, &invalid):
		respondWithError(w, http.StatusBadRequest, invalid.Error(), nil)
	case database.IsConflict(err):
		respondWithError(w, http.StatusConflict, "concurrent update, reload and retry", err)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// getWeekParam parses an optional YYYY-MM-DD query parameter into the
// Monday of its week. An absent parameter gives the zero time.
func getWeekParam(r *http.Request, key string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return time.Time{}, nil
	}
	return app.ParseWeek(v)
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
}

// intParam parses an optional integer query parameter. An absent parameter
// gives 0. It responds with 400 and returns false when the value is not an
// integer.
func intParam(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, key+" must be an integer", err)
		return 0, false
	}
	return n, true
}
