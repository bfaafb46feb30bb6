package models

import (
	"strconv"
	"time"
)

// Status is the lifecycle state of a ticket. Values 0-5 are the built-in HESK
// states; anything else is a staff-defined custom status.
type Status int

const (
	StatusNew             Status = 0
	StatusWaitingStaff    Status = 1
	StatusWaitingCustomer Status = 2
	StatusResolved        Status = 3
	StatusInProgress      Status = 4
	StatusOnHold          Status = 5
)

var statusNames = map[Status]string{
	StatusNew:             "New",
	StatusWaitingStaff:    "Waiting reply",
	StatusWaitingCustomer: "Replied",
	StatusResolved:        "Resolved",
	StatusInProgress:      "In Progress",
	StatusOnHold:          "On Hold",
}

// String returns the display name of a built-in status, or "Custom #N".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Custom #" + strconv.Itoa(int(s))
}

// Replier identifies who posted the latest reply on a ticket.
type Replier int

const (
	ReplierCustomer Replier = 0
	ReplierStaff    Replier = 1
)

// Ticket represents a help desk ticket (HESK tickets table)
type Ticket struct {
	ID          int64      `json:"id" db:"id"`
	TrackID     string     `json:"trackid" db:"trackid"`
	Name        string     `json:"name" db:"name"`
	Email       string     `json:"email" db:"email"`
	Category    int64      `json:"category" db:"category"`
	Priority    int        `json:"priority" db:"priority"`
	Subject     string     `json:"subject" db:"subject"`
	Owner       int64      `json:"owner" db:"owner"`
	Status      Status     `json:"status" db:"status"`
	Locked      bool       `json:"locked" db:"locked"`
	Created     time.Time  `json:"dt" db:"dt"`
	LastChange  time.Time  `json:"lastchange" db:"lastchange"`
	Replies     int        `json:"replies" db:"replies"`
	LastReplier Replier    `json:"lastreplier" db:"lastreplier"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	TimeWorked  string     `json:"time_worked" db:"time_worked"`

	// CustomFields holds the values of the enabled customN columns.
	CustomFields map[string]string `json:"custom_fields,omitempty" db:"-"`
}

// HasOwner reports whether a staff member is assigned to the ticket.
func (t *Ticket) HasOwner() bool {
	return t.Owner > 0
}

// Clone returns a copy that does not share the custom field map.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CustomFields != nil {
		c.CustomFields = make(map[string]string, len(t.CustomFields))
		for k, v := range t.CustomFields {
			c.CustomFields[k] = v
		}
	}
	return &c
}
