package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/coachly/coachly/internal/auth"
	"github.com/coachly/coachly/internal/domain"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 64 << 10

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Errorf(domain.ETOOLARGE, op, "Request body too large")
		}
		if errors.Is(err, io.EOF) {
			return domain.Invalid(op, "Request body is required")
		}
		return domain.Invalid(op, "Malformed JSON body")
	}
	return nil
}

// currentUser returns the authenticated user or writes 401.
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) *domain.User {
	user := auth.GetUser(r.Context())
	if user == nil {
		logger.Error("handler called without authenticated user", "path", r.URL.Path)
		UnauthorizedResponse(w, r, logger)
	}
	return user
}

// pathUUID parses a UUID path value.
func pathUUID(r *http.Request, name, op string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domain.Invalid(op, "Invalid "+name)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name, op string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Invalid(op, "Invalid "+name)
	}
	return n, nil
}

// tierOf returns the user's tier as an override for quota calls, so a ledger
// always follows the account's current subscription.
func tierOf(user *domain.User) *domain.SubscriptionTier {
	tier := user.SubscriptionTier
	return &tier
}
