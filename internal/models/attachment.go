package models

import (
	"strconv"
	"strings"
	"time"
)

// Attachment is a file permanently associated with a ticket. TicketID holds the
// tracking ID, matching the HESK attachments table.
type Attachment struct {
	ID        int64  `json:"att_id" db:"att_id"`
	TicketID  string `json:"ticket_id" db:"ticket_id"`
	SavedName string `json:"saved_name" db:"saved_name"`
	RealName  string `json:"real_name" db:"real_name"`
	Size      int64  `json:"size" db:"size"`
}

// TempAttachment is an upload made before the reply form was submitted.
// UniqueName is the handle the browser posts back in attachments[].
type TempAttachment struct {
	ID         int64     `json:"id" db:"id"`
	UniqueName string    `json:"unique_name" db:"unique_name"`
	SavedName  string    `json:"saved_name" db:"saved_name"`
	RealName   string    `json:"real_name" db:"real_name"`
	Size       int64     `json:"size" db:"size"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
}

// AttachmentRef is one decoded entry of a reply's attachment string.
type AttachmentRef struct {
	ID       int64
	RealName string
}

// EncodeAttachmentRefs builds the "id#name," reference string stored on a reply.
func EncodeAttachmentRefs(atts []*Attachment) string {
	var b strings.Builder
	for _, a := range atts {
		b.WriteString(strconv.FormatInt(a.ID, 10))
		b.WriteByte('#')
		b.WriteString(a.RealName)
		b.WriteByte(',')
	}
	return b.String()
}

// ParseAttachmentRefs decodes a reference string. Malformed entries are skipped.
func ParseAttachmentRefs(s string) []AttachmentRef {
	var refs []AttachmentRef
	for _, part := range strings.Split(s, ",") {
		if part == "" {
			continue
		}
		idStr, name, ok := strings.Cut(part, "#")
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		refs = append(refs, AttachmentRef{ID: id, RealName: name})
	}
	return refs
}
