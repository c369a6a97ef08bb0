package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errMissingAccessToken = errors.New("response carries no access token")
var errMissingRefreshToken = errors.New("response carries no refresh token")
var errMissingUser = errors.New("response carries no user")

// Field precedence when reading identity service responses. Each list is tried in
// order, first at the top level of the body and then inside a "data" object.
var (
	accessTokenFields  = []string{"accessToken", "access_token", "token"}
	refreshTokenFields = []string{"refreshToken", "refresh_token"}
)

type responseFields struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// adaptResponse extracts tokens and user from a response body.
//
// User precedence: "user" > "data.user" > "data" (when it looks like a user, i.e. has
// an id) > the whole body when wholeBodyUser is set.
func adaptResponse(body []byte, wholeBodyUser bool) (responseFields, error) {
	var out responseFields
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return out, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return out, err
	}

	var data map[string]json.RawMessage
	if raw, ok := top["data"]; ok {
		_ = json.Unmarshal(raw, &data)
	}

	out.AccessToken = firstString(accessTokenFields, top, data)
	out.RefreshToken = firstString(refreshTokenFields, top, data)

	for _, raw := range []json.RawMessage{top["user"], data["user"], top["data"]} {
		if user, ok := decodeUser(raw); ok {
			out.User = user
			break
		}
	}
	if out.User == nil && wholeBodyUser {
		if user, ok := decodeUser(body); ok {
			out.User = user
		}
	}

	return out, nil
}

func firstString(fields []string, objects ...map[string]json.RawMessage) string {
	for _, obj := range objects {
		if obj == nil {
			continue
		}
		for _, field := range fields {
			raw, ok := obj[field]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	return ""
}

func decodeUser(raw json.RawMessage) (*User, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil || u.ID == "" {
		return nil, false
	}
	return &u, true
}

// retryAfterFromBody reads "retryAfter" / "retry_after" (seconds) from an error body.
func retryAfterFromBody(body []byte) int {
	var aux struct {
		RetryAfter      *int `json:"retryAfter"`
		RetryAfterSnake *int `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &aux); err != nil {
		return 0
	}
	switch {
	case aux.RetryAfter != nil:
		return *aux.RetryAfter
	case aux.RetryAfterSnake != nil:
		return *aux.RetryAfterSnake
	default:
		return 0
	}
}

// messageFromBody reads a human readable message from an error body.
func messageFromBody(body []byte) string {
	var aux struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &aux); err != nil {
		return ""
	}
	if aux.Message != "" {
		return aux.Message
	}
	var s string
	if err := json.Unmarshal(aux.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(aux.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}
