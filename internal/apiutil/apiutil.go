// Package apiutil holds the JSON envelope and error mapping shared by every
// API handler.
//
// Successful responses are written as
//
//	{"ok": true, "result": <payload>}
//
// and failures as
//
//	{"ok": false, "result": {"error": "NotFoundError", "error_msg": "..."}}
//
// with the HTTP status taken from the returned [*Error]. Errors that are not
// an [*Error] become a 500 UnknownError. The message is always the fixed one
// carried by the [*Error]; the wrapped cause is never written to the client.
package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"libdb.so/hrt"
)

// Error is an API error with a fixed client-facing name and message. The
// wrapped error is only for logging.
type Error struct {
	Status  int
	Name    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int { return e.Status }

// NotFound returns a 404 NotFoundError.
func NotFound(err error) *Error {
	return &Error{http.StatusNotFound, "NotFoundError", "Not found", err}
}

// BadGateway returns a 502 BadGatewayError.
func BadGateway(err error) *Error {
	return &Error{http.StatusBadGateway, "BadGatewayError", "Bad gateway", err}
}

// BadRequest returns a 400 BadRequestError with the given message. The
// message must be safe to show to the client.
func BadRequest(msg string, err error) *Error {
	return &Error{http.StatusBadRequest, "BadRequestError", msg, err}
}

// Internal returns a 500 UnknownError.
func Internal(err error) *Error {
	return &Error{http.StatusInternalServerError, "UnknownError", "Internal server error", err}
}

// AsError converts any error into an [*Error]. Untyped errors become
// [Internal] errors.
func AsError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var httpErr interface{ HTTPStatus() int }
	if errors.As(err, &httpErr) && httpErr.HTTPStatus() == http.StatusBadRequest {
		// hrt reports query decoding failures this way.
		return BadRequest("Invalid request parameters", err)
	}
	return Internal(err)
}

type envelope struct {
	OK     bool `json:"ok"`
	Result any  `json:"result"`
}

type errorResult struct {
	Error   string `json:"error"`
	Message string `json:"error_msg"`
}

// Encoder encodes responses into the API envelope and decodes query and form
// parameters into `form`-tagged request structs.
type Encoder struct{}

// Encode implements [hrt.Encoder].
func (Encoder) Encode(w http.ResponseWriter, v any) error {
	return writeJSON(w, http.StatusOK, envelope{OK: true, Result: resultOf(v)})
}

// Decode implements [hrt.Decoder].
func (Encoder) Decode(r *http.Request, v any) error {
	return hrt.URLDecoder.Decode(r, v)
}

// resultOf makes sure a nil response is still written as an object.
func resultOf(v any) any {
	if v == nil {
		return struct{}{}
	}
	return v
}

// ErrorWriter writes errors into the API envelope.
type ErrorWriter struct{}

var _ hrt.ErrorWriter = ErrorWriter{}

// WriteError implements [hrt.ErrorWriter].
func (ErrorWriter) WriteError(w http.ResponseWriter, err error) {
	WriteError(w, err)
}

// WriteError writes err into w as an error envelope.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := AsError(err)
	writeJSON(w, apiErr.Status, envelope{
		OK: false,
		Result: errorResult{
			Error:   apiErr.Name,
			Message: apiErr.Message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

// Opts are the hrt options used by every API router.
var Opts = hrt.Opts{
	Encoder:     Encoder{},
	ErrorWriter: ErrorWriter{},
}

// Respond200 responds with a 200 OK and no body.
func Respond200(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
