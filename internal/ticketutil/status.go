// Package ticketutil provides small ticket rules shared by the reply workflow
// and the HTTP layer. It has no dependencies on storage.
package ticketutil

import "github.com/anri-helpdesk/helpdesk/internal/models"

// StatusPolicy decides which statuses a customer reply may change.
type StatusPolicy struct {
	fixed map[models.Status]struct{}
}

// NewStatusPolicy returns a policy where the listed statuses are fixed.
func NewStatusPolicy(fixed []int) StatusPolicy {
	p := StatusPolicy{fixed: make(map[models.Status]struct{}, len(fixed))}
	for _, s := range fixed {
		p.fixed[models.Status(s)] = struct{}{}
	}
	return p
}

// CanCustomerChangeStatus reports whether a customer reply may move a ticket
// out of status.
func (p StatusPolicy) CanCustomerChangeStatus(status models.Status) bool {
	_, fixed := p.fixed[status]
	return !fixed
}

// StatusAfterCustomerReply applies the reply transition: a ticket staff has
// not answered yet stays New, anything else waits for staff.
func (p StatusPolicy) StatusAfterCustomerReply(status models.Status) models.Status {
	if !p.CanCustomerChangeStatus(status) {
		return status
	}
	if status == models.StatusNew {
		return models.StatusNew
	}
	return models.StatusWaitingStaff
}
