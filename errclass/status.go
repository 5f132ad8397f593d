package errclass

import (
	perrors "github.com/jmgilman/go/errors"
)

// FromStatus builds a classified error for an HTTP-like status returned by a
// backend. Fetchers use it so Classify does not depend on message text.
func FromStatus(status int, message string) error {
	code := codeForStatus(status)
	return perrors.WithContext(perrors.New(code, message), "status", status)
}

// Wrap attaches the platform code matching kind to err.
// Abort and Unknown are returned unchanged.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	code, ok := codeForKind(kind)
	if !ok {
		return err
	}
	return perrors.Wrap(err, code, message)
}

func codeForStatus(status int) perrors.ErrorCode {
	switch {
	case status == 401:
		return perrors.CodeUnauthorized
	case status == 403:
		return perrors.CodeForbidden
	case status == 404:
		return perrors.CodeNotFound
	case status == 409:
		return perrors.CodeConflict
	case status == 429:
		return perrors.CodeRateLimit
	case status == 400 || status == 422:
		return perrors.CodeInvalidInput
	case status >= 500:
		return perrors.CodeUnavailable
	}
	return perrors.CodeUnknown
}

func codeForKind(kind Kind) (perrors.ErrorCode, bool) {
	switch kind {
	case Network:
		return perrors.CodeNetwork, true
	case Auth:
		return perrors.CodeUnauthorized, true
	case NotFound:
		return perrors.CodeNotFound, true
	case Server:
		return perrors.CodeUnavailable, true
	}
	return "", false
}
