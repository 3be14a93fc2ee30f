// Package protocol defines the wire format spoken over a sockrest
// WebSocket connection: one JSON request object per inbound text message,
// one JSON response envelope per outbound message. Responses are correlated
// to their request by echoing request_id and action verbatim.
package protocol

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// ID is a primary-key identifier. Clients may send it as a JSON number or
// as a string holding a number; it always serializes back as a number.
type ID uint64

// UnmarshalJSON accepts both 42 and "42".
func (id *ID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid pk %q: %w", string(data), err)
	}
	*id = ID(v)
	return nil
}

// MarshalJSON serializes the ID as a plain number.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(id), 10)), nil
}

// Request is a single inbound action message. RequestID and Data are kept
// raw: request_id is echoed back untouched (clients may use numbers,
// strings, or any other JSON value), and data is decoded later by the
// resource's serializer.
type Request struct {
	Action    string          `json:"action"`
	RequestID json.RawMessage `json:"request_id"`
	PK        *ID             `json:"pk,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Response is the uniform outbound envelope. Errors is never null on the
// wire; an error-free response carries an empty list.
type Response struct {
	Action         string          `json:"action"`
	Errors         []string        `json:"errors"`
	ResponseStatus int             `json:"response_status"`
	RequestID      json.RawMessage `json:"request_id"`
	Data           any             `json:"data"`
}

// DecodeRequest parses a raw inbound message.
func DecodeRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

// Encode serializes a response envelope.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// New builds a successful envelope for the given request.
func New(req *Request, status int, data any) *Response {
	return &Response{
		Action:         req.Action,
		Errors:         []string{},
		ResponseStatus: status,
		RequestID:      req.RequestID,
		Data:           data,
	}
}

// OK builds a 200 envelope.
func OK(req *Request, data any) *Response {
	return New(req, http.StatusOK, data)
}

// Created builds a 201 envelope.
func Created(req *Request, data any) *Response {
	return New(req, http.StatusCreated, data)
}

// NoContent builds a 204 envelope with null data.
func NoContent(req *Request) *Response {
	return New(req, http.StatusNoContent, nil)
}

// NotFound builds the canonical missing-lookup envelope.
func NotFound(req *Request) *Response {
	return &Response{
		Action:         req.Action,
		Errors:         []string{"Not found"},
		ResponseStatus: http.StatusNotFound,
		RequestID:      req.RequestID,
		Data:           nil,
	}
}

// ValidationFailed builds a 400 envelope carrying field-level errors.
func ValidationFailed(req *Request, errs []string) *Response {
	if len(errs) == 0 {
		errs = []string{"Invalid data"}
	}
	return &Response{
		Action:         req.Action,
		Errors:         errs,
		ResponseStatus: http.StatusBadRequest,
		RequestID:      req.RequestID,
		Data:           nil,
	}
}

// BadRequest builds a 400 envelope with a single error message.
func BadRequest(req *Request, msg string) *Response {
	return ValidationFailed(req, []string{msg})
}

// Event builds a pushed change-event envelope for subscribed clients.
// Events are not correlated to a request, so request_id is null.
func Event(action string, status int, data any) *Response {
	return &Response{
		Action:         action,
		Errors:         []string{},
		ResponseStatus: status,
		RequestID:      nil,
		Data:           data,
	}
}
