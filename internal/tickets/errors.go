package tickets

import (
	"errors"
	"strings"
)

// Fatal reply errors. Each ends the request with its own message.
var (
	ErrMissingTrackingID = errors.New("missing or malformed tracking id")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrTicketLocked      = errors.New("ticket is locked")
	ErrEmailMismatch     = errors.New("email does not match the ticket")
)

// IssueCode identifies a field-level problem with a reply.
type IssueCode string

const (
	CodeEnterMessage       IssueCode = "enter_message"
	CodeTooManyAttachments IssueCode = "attachments_too_many"
	CodeAttachmentTooLarge IssueCode = "attachment_too_large"
	CodeAttachmentType     IssueCode = "attachment_type_not_allowed"
	CodeAttachmentEmpty    IssueCode = "attachment_empty"
)

// ValidationIssue is one problem shown to the customer.
type ValidationIssue struct {
	Code  IssueCode `json:"code"`
	Field string    `json:"field"`
	// File is set for attachment issues.
	File string `json:"file,omitempty"`
}

// ValidationError collects every issue of a rejected reply.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	codes := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		codes[i] = string(is.Code)
	}
	return "reply validation failed: " + strings.Join(codes, ", ")
}

// Has reports whether code is among the issues.
func (e *ValidationError) Has(code IssueCode) bool {
	for _, is := range e.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}
