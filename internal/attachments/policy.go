// Package attachments stores reply attachments and moves temporary uploads
// into permanent association with a ticket.
package attachments

import (
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

// TempPrefix is the storage key prefix of uploads not yet tied to a ticket.
const TempPrefix = "tmp/"

// Upload is one file posted by the customer.
type Upload struct {
	// Slot is the 1-based legacy form slot, 0 for async uploads.
	Slot        int
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// IssueCode identifies a rejected upload.
type IssueCode string

const (
	IssueTooMany        IssueCode = "attachments_too_many"
	IssueTooLarge       IssueCode = "attachment_too_large"
	IssueTypeNotAllowed IssueCode = "attachment_type_not_allowed"
	IssueEmpty          IssueCode = "attachment_empty"
)

// Issue describes why an upload was rejected.
type Issue struct {
	Code IssueCode
	File string
}

// PolicyError carries the issues of a rejected upload.
type PolicyError struct {
	Issues []Issue
}

func (e *PolicyError) Error() string {
	if len(e.Issues) == 0 {
		return "attachment rejected"
	}
	return "attachment rejected: " + string(e.Issues[0].Code) + " (" + e.Issues[0].File + ")"
}

// Policy holds the count, size and extension limits for uploads.
type Policy struct {
	MaxNumber int
	MaxSize   int64
	allowed   map[string]struct{}
}

func NewPolicy(cfg config.AttachmentsConfig) Policy {
	p := Policy{MaxNumber: cfg.MaxNumber, MaxSize: cfg.MaxSize, allowed: make(map[string]struct{}, len(cfg.AllowedTypes))}
	for _, t := range cfg.AllowedTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		p.allowed[t] = struct{}{}
	}
	return p
}

// Allowed reports whether the file extension is on the allow-list.
// An empty allow-list allows everything.
func (p Policy) Allowed(name string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	_, ok := p.allowed[Ext(name)]
	return ok
}

// Check validates a single upload.
func (p Policy) Check(u Upload) []Issue {
	var issues []Issue
	switch {
	case u.Size <= 0:
		issues = append(issues, Issue{Code: IssueEmpty, File: u.Name})
	case p.MaxSize > 0 && u.Size > p.MaxSize:
		issues = append(issues, Issue{Code: IssueTooLarge, File: u.Name})
	}
	if !p.Allowed(u.Name) {
		issues = append(issues, Issue{Code: IssueTypeNotAllowed, File: u.Name})
	}
	return issues
}

// Validate checks a whole legacy submission. Uploads beyond MaxNumber are
// reported once and not checked further.
func (p Policy) Validate(uploads []Upload) []Issue {
	var issues []Issue
	for i, u := range uploads {
		if p.MaxNumber > 0 && i >= p.MaxNumber {
			issues = append(issues, Issue{Code: IssueTooMany, File: u.Name})
			break
		}
		issues = append(issues, p.Check(u)...)
	}
	return issues
}

// Ext returns the lower-cased extension including the dot.
func Ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// CleanName strips directories and characters that would break the reply
// attachment reference string.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == ',':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		name = "attachment"
	}
	for len(name) > 255 {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// SavedName builds the permanent storage name <trackid>_<random>.<ext>.
func SavedName(trackID, realName string) string {
	return trackID + "_" + strings.ReplaceAll(uuid.NewString(), "-", "") + Ext(realName)
}

// TempKey is the storage key of a temporary upload.
func TempKey(savedName string) string {
	return TempPrefix + savedName
}
