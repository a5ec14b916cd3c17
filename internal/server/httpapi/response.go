package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/poikeeper/internal/common"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// errorStatus orders the checks so that the most specific kind wins.
var errorStatus = []struct {
	kind   error
	status int
}{
	{common.ErrTokenExpired, http.StatusUnauthorized},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized},
	{common.ErrInvalidToken, http.StatusUnauthorized},
	{common.ErrorUnauthorized, http.StatusUnauthorized},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrForbidden, http.StatusForbidden},
	{common.ErrBadRequest, http.StatusBadRequest},
	{common.ErrVersionConflict, http.StatusConflict},
	{common.ErrConflict, http.StatusConflict},
}

// httpStatus maps a service error to its status code and caller-facing
// message. Unknown errors become a generic 500.
func httpStatus(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.kind) {
			if msg := common.Message(err); msg != "" {
				return e.status, msg
			}
			return e.status, e.kind.Error()
		}
	}
	return http.StatusInternalServerError, common.ErrorInternal.Error()
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: msg, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request error", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func badRequest(msg string) error {
	return common.NewError(common.ErrBadRequest, msg)
}

// decodeObject reads a JSON object body into raw members.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	var body map[string]json.RawMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, badRequest("request body is empty")
		}
		return nil, badRequest("invalid request body")
	}
	if body == nil {
		return nil, badRequest("expected a JSON object")
	}
	return body, nil
}

func decodeInto(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body")
	}
	return nil
}

// takeVersion removes the optional "version" member from body.
func takeVersion(body map[string]json.RawMessage) (int64, error) {
	raw, ok := body["version"]
	if !ok {
		return 0, nil
	}
	delete(body, "version")
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil || v < 0 {
		return 0, badRequest("version: must be a non-negative integer")
	}
	return v, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewError(common.ErrorNotFound, "resource not found")
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, badRequest(name + ": must be a non-negative integer")
	}
	return v, nil
}

func queryVersion(r *http.Request) (int64, error) {
	s := r.URL.Query().Get("version")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, badRequest("version: must be a non-negative integer")
	}
	return v, nil
}

func queryPage(r *http.Request) (services.Page, error) {
	n, err := queryInt(r, "page")
	if err != nil {
		return services.Page{}, err
	}
	size, err := queryInt(r, "size")
	if err != nil {
		return services.Page{}, err
	}
	return services.Page{Number: n, Size: size}, nil
}
