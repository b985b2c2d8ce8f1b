package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Clark-Hu/universal-rate/internal/identity"
	"github.com/Clark-Hu/universal-rate/internal/validation"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	if err := writeJSON(w, status, payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondValidation(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: verr.Error(),
			Details: verr.Fields,
		})
		return
	}
	s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Unable to parse request body: "+err.Error())
	}
}

// respondIdentityError maps resolver failures: unresolvable input is the
// caller's fault, upstream outages are ours.
func (s *Server) respondIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrCastURLDisabled):
		s.respondError(w, http.StatusBadRequest, "UNRESOLVED_TARGET", "Cast URL resolution is not enabled. Provide ratedFid or handle instead.")
	case errors.Is(err, identity.ErrUnresolved), errors.Is(err, identity.ErrNotFound):
		s.respondError(w, http.StatusBadRequest, "UNRESOLVED_TARGET", "Unable to resolve rated user. Provide ratedFid, handle, or castUrl.")
	default:
		s.logger.Warn().Err(err).Msg("identity upstream failure")
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Identity provider unavailable: "+err.Error())
	}
}

// flexibleID accepts a JSON number or string.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("must be a number or a string")
	}
	*f = flexibleID(n.String())
	return nil
}

func fidParam(r *http.Request) (int64, error) {
	fid, ok := identity.ParseFID(chi.URLParam(r, "fid"))
	if !ok {
		return 0, fmt.Errorf("invalid fid parameter")
	}
	return fid, nil
}
