package executor

import "github.com/rynxs/operator-core/pkg/errs"

// ErrConflict is returned (wrapped) by a ResourceAPI.Create implementation
// when the target resource already exists, per spec §4.6 step 3.
type ErrConflict struct {
	Ref ResourceRef
}

func (e *ErrConflict) Error() string { return "resource already exists: " + e.Ref.Name }

// APIError is what a ResourceAPI implementation returns for any failure
// that isn't a create-conflict; the executor lowers it into the stable
// taxonomy (spec §7) before it ever reaches an event.
type APIError struct {
	StatusCode int
	Reason     string
}

func (e *APIError) Error() string { return e.Reason }

// lowerAPIError maps a raw status code to the stable K8S_* code set
// (spec §7). Anything outside the known ranges becomes UNKNOWN.
func lowerAPIError(statusCode int, reason string) *errs.Error {
	code := "UNKNOWN"
	switch statusCode {
	case 404:
		code = "K8S_NOT_FOUND"
	case 409:
		code = "K8S_CONFLICT"
	case 403:
		code = "K8S_FORBIDDEN"
	case 401:
		code = "K8S_UNAUTHORIZED"
	case 422:
		code = "K8S_INVALID"
	default:
		switch {
		case statusCode >= 500 && statusCode < 600:
			code = "K8S_SERVER_ERROR"
		case statusCode >= 400 && statusCode < 500:
			code = "K8S_ERROR"
		}
	}
	return errs.ExternalAPI(code, statusCode, reason)
}
