package service

import "errors"

var (
	ErrBipNotFound            = errors.New("bip not found")
	ErrSellNotFound           = errors.New("sell not found")
	ErrEmptyRaw               = errors.New("raw barcode is empty")
	ErrInvalidReason          = errors.New("invalid cancellation reason")
	ErrEmployeeRequired       = errors.New("cancellation reason requires a responsible employee")
	ErrEmployeeNotFound       = errors.New("responsible employee not found")
	ErrBipNotPending          = errors.New("bip is not pending")
	ErrBipNotCancelled        = errors.New("bip is not cancelled")
	ErrDuplicateInFlight      = errors.New("duplicate delivery still being processed")
	ErrSuspectBipNotCancelled = errors.New("only cancelled bips can be identified")
	ErrAlreadyIdentified      = errors.New("bip already has a suspect identification")
	ErrBipIdentified          = errors.New("bip has a suspect identification and cannot be reactivated")
	ErrUnsupportedMedia       = errors.New("unsupported media type")
	ErrMediaTooLarge          = errors.New("media exceeds size limit")
)

// ValidationError is a rejected input. Message is client facing.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationError(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
