package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-success REST response with GitHub's error payload decoded.
type APIError struct {
	StatusCode int
	Message    string
	Errors     []FieldError
	Body       string
}

// FieldError is one entry of the "errors" array of a validation failure.
type FieldError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// UnmarshalJSON accepts both object entries and bare strings, which
// GitHub uses for some validation messages.
func (e *FieldError) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = FieldError{Message: s}
		return nil
	}
	type plain FieldError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = FieldError(p)
	return nil
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("API error: %s (status %d)", msg, e.StatusCode)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var payload struct {
		Message string       `json:"message"`
		Errors  []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = payload.Message
		apiErr.Errors = payload.Errors
	}
	return apiErr
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// IsAlreadyExists reports whether a create call failed because the resource
// is already there. GitHub answers 422, usually with code already_exists.
func IsAlreadyExists(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	if len(apiErr.Errors) == 0 {
		return true
	}
	for _, fe := range apiErr.Errors {
		if fe.Code == "already_exists" {
			return true
		}
	}
	return strings.Contains(apiErr.Body, "already_exists")
}

// IsAssigneeRejected reports whether an issue creation was refused because
// of its assignees. The structured field is checked first; older responses
// only mention it in the message text.
func IsAssigneeRejected(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, fe := range apiErr.Errors {
		if strings.EqualFold(fe.Field, "assignees") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Body), "assignees")
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// GraphQLErrors is returned when a GraphQL response carries errors. Data
// that did resolve is still decoded.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Without returns the errors whose message does not contain any of the
// given substrings (case-insensitive).
func (e GraphQLErrors) Without(substrings ...string) GraphQLErrors {
	var kept GraphQLErrors
	for _, ge := range e {
		msg := strings.ToLower(ge.Message)
		skip := false
		for _, s := range substrings {
			if strings.Contains(msg, strings.ToLower(s)) {
				skip = true
				break
			}
		}
		if !skip {
			kept = append(kept, ge)
		}
	}
	return kept
}
