package api

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/anri-helpdesk/helpdesk/internal/database"
	"github.com/anri-helpdesk/helpdesk/internal/floodguard"
	"github.com/anri-helpdesk/helpdesk/internal/tickets"
)

// Message is what the customer is told about a reply.
type Message struct {
	Status int
	Code   string
	Text   string
	// Redirect sends the customer back to the ticket page with a flash
	// message instead of showing an error page.
	Redirect bool
}

const (
	textReplySuccess  = "Your reply to this ticket has been successfully submitted"
	textFlood         = "Please wait a few seconds before submitting another reply"
	textMaxPost       = "You probably tried to submit more data than this server accepts. Please try submitting the form again with smaller or no attachments."
	textNotFound      = "Ticket not found! Please make sure you have entered the correct tracking ID!"
	textMissingTrack  = "Internal error: no tracking ID was submitted"
	textLocked        = "This ticket has been locked, you cannot post a reply."
	textEmailMismatch = "The email address you entered does not match the one in our database for this ticket ID."
	textBanActive     = "You have been locked out of the help desk for %d minutes. Please try again later."
	textBanSequential = "You have posted too many replies in a row and have been locked out for %d minutes."
	textInternal      = "Internal error, please try again later"
	textDBDown        = "Can't connect to the database, please try again later"
	textCorrect       = "Please correct the following errors:"
	textUploadsOff    = "Attachments are disabled"
)

var issueTexts = map[tickets.IssueCode]string{
	tickets.CodeEnterMessage:       "Please enter your message",
	tickets.CodeTooManyAttachments: "You have selected too many attachments",
	tickets.CodeAttachmentTooLarge: "The file is too large",
	tickets.CodeAttachmentType:     "This file type is not allowed",
	tickets.CodeAttachmentEmpty:    "The file is empty",
}

// IssueText describes one validation issue.
func IssueText(is tickets.ValidationIssue) string {
	text, ok := issueTexts[is.Code]
	if !ok {
		text = string(is.Code)
	}
	if is.File != "" {
		return is.File + ": " + text
	}
	return text
}

var (
	msgSuccess  = Message{Status: http.StatusCreated, Code: "reply_submitted_success", Text: textReplySuccess, Redirect: true}
	msgMaxPost  = Message{Status: http.StatusRequestEntityTooLarge, Code: "maxpost", Text: textMaxPost}
	msgInternal = Message{Status: http.StatusInternalServerError, Code: "int_error", Text: textInternal}
	msgDBDown   = Message{Status: http.StatusServiceUnavailable, Code: "cant_connect_db", Text: textDBDown}
)

// MessageFor maps a SubmitReply error to the customer message.
func MessageFor(err error) Message {
	var (
		ban *floodguard.BanError
		ve  *tickets.ValidationError
	)
	switch {
	case err == nil:
		return msgSuccess
	case errors.As(err, &ve):
		return Message{Status: http.StatusBadRequest, Code: "pcer", Text: validationText(ve), Redirect: true}
	case errors.Is(err, floodguard.ErrFlood):
		return Message{Status: http.StatusTooManyRequests, Code: "e_flood", Text: textFlood}
	case errors.As(err, &ban):
		if ban.Reason == floodguard.BanSequential {
			return Message{Status: http.StatusForbidden, Code: "yhbr", Text: fmt.Sprintf(textBanSequential, ban.Minutes)}
		}
		return Message{Status: http.StatusForbidden, Code: "yhbb", Text: fmt.Sprintf(textBanActive, ban.Minutes)}
	case errors.Is(err, tickets.ErrMissingTrackingID):
		return Message{Status: http.StatusBadRequest, Code: "int_error", Text: textMissingTrack}
	case errors.Is(err, tickets.ErrTicketNotFound):
		return Message{Status: http.StatusNotFound, Code: "ticket_not_found", Text: textNotFound}
	case errors.Is(err, tickets.ErrTicketLocked):
		return Message{Status: http.StatusLocked, Code: "tislock2", Text: textLocked, Redirect: true}
	case errors.Is(err, tickets.ErrEmailMismatch):
		return Message{Status: http.StatusForbidden, Code: "enmdb", Text: textEmailMismatch}
	case database.IsConnectionError(err):
		return msgDBDown
	}
	return msgInternal
}

// validationText renders the issue list the way the ticket page shows it.
func validationText(ve *tickets.ValidationError) string {
	var b strings.Builder
	b.WriteString(textCorrect)
	b.WriteString("<br /><br /><ul>")
	for _, is := range ve.Issues {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(IssueText(is)))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}
