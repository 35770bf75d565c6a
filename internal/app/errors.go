package app

import "fmt"

// DomainError is a service-level failure the HTTP layer maps straight onto
// the wire: Status becomes the response code, the rest the JSON error body.
// Anything else bubbling out of the service is treated as a server fault.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
