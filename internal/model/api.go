package model

// Stable machine-readable error codes shared by the server and the
// client session manager. Clients branch on Code, never on Message.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeEmailExists   = "EMAIL_EXISTS"
	CodeInvalidCreds  = "INVALID_CREDENTIALS"
	CodeRoleMismatch  = "ROLE_MISMATCH"
	CodeAuthRequired  = "AUTH_REQUIRED"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeTokenExpired  = "TOKEN_EXPIRED"
	CodeWrongType     = "INVALID_TOKEN_TYPE"
	CodeInvalidRefr   = "INVALID_REFRESH"
	CodeInsufficient  = "INSUFFICIENT_PERMISSIONS"
	CodeOwnership     = "OWNERSHIP_REQUIRED"
	CodeNotFound      = "RESOURCE_NOT_FOUND"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL"
)

// APIError is the uniform error envelope of every non-2xx JSON
// response.
type APIError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewAPIError builds the error envelope; Success is always false.
func NewAPIError(code, message string) APIError {
	return APIError{Success: false, Message: message, Code: code}
}
