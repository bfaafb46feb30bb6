package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anri-helpdesk/helpdesk/internal/attachments"
	"github.com/anri-helpdesk/helpdesk/internal/middleware"
	"github.com/anri-helpdesk/helpdesk/internal/session"
	"github.com/anri-helpdesk/helpdesk/internal/tickets"
	"github.com/anri-helpdesk/helpdesk/internal/ticketutil"
)

// multipartMemory is how much of a multipart body is kept in memory before
// file parts spill to disk.
const multipartMemory = 8 << 20

var legacySlotRe = regexp.MustCompile(`^attachment\[(\d+)\]$`)

// ReplySubmitter runs the customer reply workflow.
type ReplySubmitter interface {
	SubmitReply(ctx context.Context, sess *session.Session, req tickets.ReplyRequest) (*tickets.ReplyResult, error)
}

// handleReplyTicket serves the HESK reply form. Success, validation problems
// and locked tickets go back to the ticket page with a flash message; every
// other failure shows the error page.
func handleReplyTicket(svc ReplySubmitter, site SiteInfo, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Redirect(http.StatusFound, "/index.php")
			return
		}
		if middleware.PostTooLarge(c, nil) {
			renderError(c, site, msgMaxPost)
			return
		}

		req, err := parseReplyForm(c)
		if err != nil {
			if middleware.PostTooLarge(c, err) {
				renderError(c, site, msgMaxPost)
				return
			}
			log.Warn("unreadable reply form", "error", err, "request_id", middleware.GetRequestID(c))
			renderError(c, site, Message{Status: http.StatusBadRequest, Code: "int_error", Text: textInternal})
			return
		}

		sess := middleware.GetSession(c)
		res, err := svc.SubmitReply(c.Request.Context(), sess, req)
		msg := MessageFor(err)
		logFailure(c, log, msg, err)

		if !msg.Redirect || sess == nil {
			renderError(c, site, msg)
			return
		}

		kind := session.FlashError
		trackID := ticketutil.CleanTrackingID(req.TrackingID)
		if err == nil {
			kind = session.FlashSuccess
			trackID = res.Ticket.TrackID
		}
		sess.SetFlash(kind, msg.Text)
		c.Redirect(http.StatusSeeOther, "/ticket.php?track="+url.QueryEscape(trackID))
	}
}

// replyBody is the JSON or form body of the API endpoint.
type replyBody struct {
	Email       string   `json:"email" form:"email"`
	Message     string   `json:"message" form:"message"`
	Reopen      bool     `json:"reopen" form:"reopen"`
	Attachments []string `json:"attachments" form:"attachments[]"`
}

type issueJSON struct {
	Code    tickets.IssueCode `json:"code"`
	Field   string            `json:"field"`
	File    string            `json:"file,omitempty"`
	Message string            `json:"message"`
}

// handleCreateReply is the JSON variant of the reply form.
func handleCreateReply(svc ReplySubmitter, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body replyBody
		if err := c.ShouldBind(&body); err != nil {
			if middleware.PostTooLarge(c, err) {
				writeJSONError(c, msgMaxPost, nil)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body", "message": err.Error()})
			return
		}
		if middleware.PostTooLarge(c, nil) {
			writeJSONError(c, msgMaxPost, nil)
			return
		}

		req := tickets.ReplyRequest{
			TrackingID:      c.Param("trackid"),
			Email:           body.Email,
			Message:         body.Message,
			Reopen:          body.Reopen,
			ClientIP:        c.ClientIP(),
			TempAttachments: body.Attachments,
		}

		res, err := svc.SubmitReply(c.Request.Context(), middleware.GetSession(c), req)
		msg := MessageFor(err)
		logFailure(c, log, msg, err)
		if err != nil {
			var ve *tickets.ValidationError
			if errors.As(err, &ve) {
				writeJSONError(c, Message{Status: msg.Status, Code: "validation", Text: textCorrect}, ve.Issues)
				return
			}
			writeJSONError(c, msg, nil)
			return
		}

		atts := make([]gin.H, 0, len(res.Attachments))
		for _, a := range res.Attachments {
			atts = append(atts, gin.H{"id": a.ID, "name": a.RealName, "size": a.Size})
		}
		c.JSON(http.StatusCreated, gin.H{
			"message":     msg.Text,
			"reply_id":    res.Reply.ID,
			"trackid":     res.Ticket.TrackID,
			"status":      int(res.Ticket.Status),
			"status_name": res.Ticket.Status.String(),
			"attachments": atts,
		})
	}
}

func writeJSONError(c *gin.Context, msg Message, issues []tickets.ValidationIssue) {
	body := gin.H{"error": msg.Code, "message": msg.Text}
	if len(issues) > 0 {
		out := make([]issueJSON, len(issues))
		for i, is := range issues {
			out[i] = issueJSON{Code: is.Code, Field: is.Field, File: is.File, Message: IssueText(is)}
		}
		body["issues"] = out
	}
	c.AbortWithStatusJSON(msg.Status, body)
}

func logFailure(c *gin.Context, log *slog.Logger, msg Message, err error) {
	if err == nil {
		return
	}
	if msg.Status >= http.StatusInternalServerError {
		log.Error("reply failed", "error", err, "ip", c.ClientIP(), "request_id", middleware.GetRequestID(c))
		return
	}
	log.Info("reply rejected", "code", msg.Code, "error", err, "ip", c.ClientIP())
}

func parseReplyForm(c *gin.Context) (tickets.ReplyRequest, error) {
	r := c.Request
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return tickets.ReplyRequest{}, err
		}
	} else if err := r.ParseForm(); err != nil {
		return tickets.ReplyRequest{}, err
	}

	form := r.PostForm
	handles := form["attachments[]"]
	if len(handles) == 0 {
		handles = form["attachments"]
	}
	req := tickets.ReplyRequest{
		TrackingID:           form.Get("orig_track"),
		Email:                form.Get("email"),
		Message:              form.Get("message"),
		Reopen:               form.Get("reopen") == "1",
		ClientIP:             c.ClientIP(),
		TempAttachments:      handles,
		UseLegacyAttachments: form.Get("use-legacy-attachments") == "1",
	}
	if req.UseLegacyAttachments && r.MultipartForm != nil {
		req.Uploads = legacyUploads(r.MultipartForm)
	}
	return req, nil
}

// legacyUploads collects the attachment[N] file fields in slot order.
func legacyUploads(form *multipart.Form) []attachments.Upload {
	var uploads []attachments.Upload
	for field, files := range form.File {
		m := legacySlotRe.FindStringSubmatch(field)
		if m == nil || len(files) == 0 || files[0].Filename == "" {
			continue
		}
		slot, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		uploads = append(uploads, fileUpload(slot, files[0]))
	}
	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Slot < uploads[j].Slot })
	return uploads
}

func fileUpload(slot int, fh *multipart.FileHeader) attachments.Upload {
	return attachments.Upload{
		Slot:        slot,
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}
