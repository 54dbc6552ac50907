// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable, machine-readable code carried by every app error.
type ErrorCode string

const (
	CodeMissingCredentials       ErrorCode = "PROVIDER_CREDENTIALS_MISSING"
	CodeMissingForwardingNumber  ErrorCode = "FORWARDING_NUMBER_MISSING"
	CodeNotFound                 ErrorCode = "NOT_FOUND"
	CodeNoWork                   ErrorCode = "NO_ELIGIBLE_SCRIPTS"
	CodeAlreadyDispatching       ErrorCode = "ALREADY_DISPATCHING"
	CodeRecipientInvalidPhone    ErrorCode = "INVALID_PHONE"
	CodeRecipientContactNotFound ErrorCode = "CONTACT_NOT_FOUND"
	CodeRecipientUploadFailure   ErrorCode = "UPLOAD_FAILURE"
	CodeRecipientDispatchFailure ErrorCode = "DISPATCH_FAILURE"
	CodeRecipientUnexpected      ErrorCode = "UNEXPECTED_EXCEPTION"
)

// ConfigurationReason distinguishes the two configuration failures.
type ConfigurationReason string

const (
	ReasonMissingCredentials      ConfigurationReason = "missing_provider_credentials"
	ReasonMissingForwardingNumber ConfigurationReason = "missing_forwarding_number"
)

// ConfigurationError aborts a dispatch before any recipient is touched.
type ConfigurationError struct {
	Reason  ConfigurationReason
	Missing []string
}

func (e *ConfigurationError) Error() string {
	switch e.Reason {
	case ReasonMissingForwardingNumber:
		return "forwarding phone number is not configured for this account"
	default:
		if len(e.Missing) > 0 {
			return fmt.Sprintf("voicemail provider credentials missing: %v", e.Missing)
		}
		return "voicemail provider credentials missing"
	}
}

func (e *ConfigurationError) Code() ErrorCode {
	if e.Reason == ReasonMissingForwardingNumber {
		return CodeMissingForwardingNumber
	}
	return CodeMissingCredentials
}

func NewMissingCredentials(missing ...string) error {
	return &ConfigurationError{Reason: ReasonMissingCredentials, Missing: missing}
}

func NewMissingForwardingNumber() error {
	return &ConfigurationError{Reason: ReasonMissingForwardingNumber}
}

// NotFoundError is returned when a resource is missing or not owned by the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Code() ErrorCode { return CodeNotFound }

func NewCampaignNotFound(id string) error {
	return &NotFoundError{Resource: "campaign", ID: id}
}

func NewNotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// NoWorkError means zero scripts passed the eligibility filter.
type NoWorkError struct {
	CampaignID string
}

func (e *NoWorkError) Error() string {
	return fmt.Sprintf("campaign %s has no scripts with completed audio waiting to be sent", e.CampaignID)
}

func (e *NoWorkError) Code() ErrorCode { return CodeNoWork }

func NewNoWork(campaignID string) error {
	return &NoWorkError{CampaignID: campaignID}
}

// AlreadyDispatchingError rejects a second concurrent dispatch of one campaign.
type AlreadyDispatchingError struct {
	CampaignID string
}

func (e *AlreadyDispatchingError) Error() string {
	return fmt.Sprintf("campaign %s is already being dispatched", e.CampaignID)
}

func (e *AlreadyDispatchingError) Code() ErrorCode { return CodeAlreadyDispatching }

func NewAlreadyDispatching(campaignID string) error {
	return &AlreadyDispatchingError{CampaignID: campaignID}
}

// RecipientErrorKind classifies a failure isolated to one work item.
type RecipientErrorKind string

const (
	KindInvalidPhone        RecipientErrorKind = "invalid_phone"
	KindContactNotFound     RecipientErrorKind = "contact_not_found"
	KindUploadFailure       RecipientErrorKind = "upload_failure"
	KindDispatchFailure     RecipientErrorKind = "dispatch_failure"
	KindUnexpectedException RecipientErrorKind = "unexpected_exception"
)

// RecipientError never aborts a batch; it becomes a failed result entry.
type RecipientError struct {
	Kind RecipientErrorKind
	Err  error
}

func (e *RecipientError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RecipientError) Unwrap() error { return e.Err }

func (e *RecipientError) Code() ErrorCode {
	switch e.Kind {
	case KindInvalidPhone:
		return CodeRecipientInvalidPhone
	case KindContactNotFound:
		return CodeRecipientContactNotFound
	case KindUploadFailure:
		return CodeRecipientUploadFailure
	case KindDispatchFailure:
		return CodeRecipientDispatchFailure
	default:
		return CodeRecipientUnexpected
	}
}

func NewRecipientError(kind RecipientErrorKind, err error) error {
	return &RecipientError{Kind: kind, Err: err}
}

// IsFatal reports whether err is one of the precondition failures that abort
// a dispatch with no partial work.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var nf *NotFoundError
	var nw *NoWorkError
	var ad *AlreadyDispatchingError
	return errors.As(err, &cfgErr) || errors.As(err, &nf) || errors.As(err, &nw) || errors.As(err, &ad)
}

// HTTPStatus maps an error to the status code returned to the trigger caller.
func HTTPStatus(err error) int {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		if cfgErr.Reason == ReasonMissingForwardingNumber {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	var nw *NoWorkError
	if errors.As(err, &nw) {
		return http.StatusBadRequest
	}
	var ad *AlreadyDispatchingError
	if errors.As(err, &ad) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
