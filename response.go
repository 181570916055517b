package luco

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Response is the success envelope returned by every endpoint.
type Response[T any] struct {
	// Data is nil when the envelope carries no "data" field or it is null.
	Data *T
	// Message is the optional human readable message, empty when absent.
	Message string
	// Success defaults to true when the field is missing.
	Success bool
}

var errNotObject = errors.New("response body is not a JSON object")

// decodeEnvelope turns a response body into a success envelope or an *APIError.
// Bodies that are not JSON objects yield a *DecodeError on both paths.
func decodeEnvelope[T any](status int, body []byte) (*Response[T], error) {
	fields, err := parseObject(body)
	if err != nil {
		return nil, &DecodeError{StatusCode: status, Err: err}
	}

	if !isSuccessStatus(status) {
		return nil, decodeAPIError(status, fields)
	}

	resp := &Response[T]{Success: true}

	if raw, ok := fields["data"]; ok && !isNull(raw) {
		data := new(T)
		if err := json.Unmarshal(raw, data); err != nil {
			return nil, &DecodeError{StatusCode: status, Err: fmt.Errorf("data: %w", err)}
		}
		resp.Data = data
	}

	if raw, ok := fields["message"]; ok {
		resp.Message = rawString(raw)
	}

	if raw, ok := fields["success"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &resp.Success); err != nil {
			return nil, &DecodeError{StatusCode: status, Err: fmt.Errorf("success: %w", err)}
		}
	}

	return resp, nil
}

// decodeAPIError reads {"message": ..., "error": {"type", "code", "details"}}.
// The server sometimes sends "error" as a plain string; that form carries no type or code.
func decodeAPIError(status int, fields map[string]json.RawMessage) *APIError {
	apiErr := &APIError{
		Message:    fmt.Sprintf("HTTP %d", status),
		HTTPStatus: status,
	}

	if raw, ok := fields["message"]; ok && !isNull(raw) {
		if msg := rawString(raw); msg != "" {
			apiErr.Message = msg
		}
	}

	if raw, ok := fields["error"]; ok {
		var detail struct {
			Type    json.RawMessage `json:"type"`
			Code    json.RawMessage `json:"code"`
			Details json.RawMessage `json:"details"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil {
			apiErr.ErrorType = rawString(detail.Type)
			apiErr.ErrorCode = rawString(detail.Code)
			if len(detail.Details) > 0 && !isNull(detail.Details) {
				apiErr.Details = detail.Details
			}
		}
	}

	return apiErr
}

// parseObject splits a JSON object into its raw fields. An empty body counts as {}.
func parseObject(body []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// rawString returns a JSON string's value, or the literal text of any other scalar.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
