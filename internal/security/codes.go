package security

import (
	"errors"
	"net/http"
)

// Code : a stable refusal code. The empty code means access granted.
type Code string

const (
	CodeNone               Code = ""
	CodeNoCredentials      Code = "E01"
	CodeInvalidCredentials Code = "E02"
	CodeMissingCredentials Code = "E03"
	CodeInvalidMethod      Code = "E05"
	CodeReadDenied         Code = "E06"
	CodeWriteDenied        Code = "E07"
	CodeExecDenied         Code = "E08"
	CodeBadVersion         Code = "E12"
	CodeMalformedToken     Code = "E20"
	CodeUndecodableToken   Code = "E21"
	CodeInvalidSignature   Code = "E22"
	CodeExpiredToken       Code = "E23"
	CodePrematureToken     Code = "E24"
	CodeNoKey              Code = "E25"
	CodeInvalidUserGroup   Code = "E30"
	CodeForgeFailed        Code = "E31"
	CodeInconsistentUser   Code = "E32"
	// CodeContextClosed : a decision reached a context that already terminated its request.
	CodeContextClosed Code = "E40"
)

const (
	GrantedMessage = "access granted"
	DefaultRealm   = "Missing access rights"
)

var descriptions = map[Code]string{
	CodeNoCredentials:      "Authentication required",
	CodeInvalidCredentials: "Authentication failed: invalid user/password",
	CodeMissingCredentials: "Access not granted: the user misses one or several credentials",
	CodeInvalidMethod:      "Authentication method invalid",
	CodeReadDenied:         "Access not granted: read access not set for the user",
	CodeWriteDenied:        "Access not granted: write access not set for the user",
	CodeExecDenied:         "Access not granted: execution access not set for the user",
	CodeBadVersion:         "Incorrect API version, or version unspecified",
	CodeMalformedToken:     "Malformed JWT",
	CodeUndecodableToken:   "Could not decode JWT",
	CodeInvalidSignature:   "Invalid signature for JWT",
	CodeExpiredToken:       "Outdated JWT",
	CodePrematureToken:     "Overdated JWT",
	CodeNoKey:              "Tier authority unknown or key missing",
	CodeInvalidUserGroup:   "Invalid user/group specification (did you change the user's group ?)",
	CodeForgeFailed:        "Could not forge JWT",
	CodeInconsistentUser:   "User defined with different id",
	CodeContextClosed:      "Internal error: access control already done",
}

// Describe : the message and realm of a code.
func Describe(code Code) (string, string) {
	if code == CodeNone {
		return GrantedMessage, ""
	}
	message, ok := descriptions[code]
	if !ok {
		return "Authentication failed", DefaultRealm
	}
	switch code {
	case CodeNoCredentials, CodeInvalidMethod:
		return message, message
	}
	return message, DefaultRealm
}

// HTTPStatus : the response status carried by a code.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNone:
		return http.StatusOK
	case CodeMissingCredentials, CodeInvalidMethod:
		return http.StatusMethodNotAllowed
	case CodeBadVersion:
		return http.StatusPreconditionFailed
	case CodeContextClosed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

type AccessError struct {
	Code Code
}

func (e *AccessError) Error() string {
	message, _ := Describe(e.Code)
	return string(e.Code) + ": " + message
}

// CodeOf : the code carried by err, CodeNone when err is not an access error.
func CodeOf(err error) Code {
	var accessErr *AccessError
	if errors.As(err, &accessErr) {
		return accessErr.Code
	}
	return CodeNone
}
