package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anri-helpdesk/helpdesk/internal/attachments"
	"github.com/anri-helpdesk/helpdesk/internal/middleware"
	"github.com/anri-helpdesk/helpdesk/internal/models"
	"github.com/anri-helpdesk/helpdesk/internal/tickets"
)

// TempUploader stores async uploads until the reply is posted.
type TempUploader interface {
	UploadTemporary(ctx context.Context, up attachments.Upload) (*models.TempAttachment, error)
}

var uploadIssueCodes = map[attachments.IssueCode]tickets.IssueCode{
	attachments.IssueTooMany:        tickets.CodeTooManyAttachments,
	attachments.IssueTooLarge:       tickets.CodeAttachmentTooLarge,
	attachments.IssueTypeNotAllowed: tickets.CodeAttachmentType,
	attachments.IssueEmpty:          tickets.CodeAttachmentEmpty,
}

// handleUploadAttachment accepts one file in the "attachment" field and
// answers with the handle the reply form posts back in attachments[].
func handleUploadAttachment(up TempUploader, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if up == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachments_disabled", "message": textUploadsOff})
			return
		}
		if middleware.PostTooLarge(c, nil) {
			writeJSONError(c, msgMaxPost, nil)
			return
		}

		fh, err := c.FormFile("attachment")
		if err != nil {
			if middleware.PostTooLarge(c, err) {
				writeJSONError(c, msgMaxPost, nil)
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file", "message": "No file was uploaded"})
			return
		}

		tmp, err := up.UploadTemporary(c.Request.Context(), fileUpload(0, fh))
		if err != nil {
			var pe *attachments.PolicyError
			if errors.As(err, &pe) {
				issues := make([]tickets.ValidationIssue, len(pe.Issues))
				for i, is := range pe.Issues {
					issues[i] = tickets.ValidationIssue{Code: uploadIssueCodes[is.Code], Field: "attachment", File: is.File}
				}
				writeJSONError(c, Message{Status: http.StatusBadRequest, Code: "validation", Text: textCorrect}, issues)
				return
			}
			log.Error("temp upload failed", "file", fh.Filename, "error", err, "request_id", middleware.GetRequestID(c))
			writeJSONError(c, msgInternal, nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"name":       tmp.UniqueName,
			"real_name":  tmp.RealName,
			"size":       tmp.Size,
			"expires_at": tmp.ExpiresAt,
		})
	}
}
