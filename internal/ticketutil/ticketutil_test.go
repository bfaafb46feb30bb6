package ticketutil

import (
	"testing"

	"github.com/anri-helpdesk/helpdesk/internal/models"
)

func TestStatusAfterCustomerReply(t *testing.T) {
	p := NewStatusPolicy([]int{3, 7})

	tests := []struct {
		name string
		in   models.Status
		want models.Status
	}{
		{"new stays new", models.StatusNew, models.StatusNew},
		{"waiting customer goes to staff", models.StatusWaitingCustomer, models.StatusWaitingStaff},
		{"in progress goes to staff", models.StatusInProgress, models.StatusWaitingStaff},
		{"waiting staff stays", models.StatusWaitingStaff, models.StatusWaitingStaff},
		{"fixed resolved untouched", models.StatusResolved, models.StatusResolved},
		{"fixed custom untouched", models.Status(7), models.Status(7)},
		{"custom changes", models.Status(9), models.StatusWaitingStaff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.StatusAfterCustomerReply(tt.in); got != tt.want {
				t.Errorf("StatusAfterCustomerReply(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanTrackingID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc-def-1234", "ABC-DEF-1234"},
		{"  ABC DEF 1234 ", "ABCDEF1234"},
		{"<script>", "SCRIPT"},
		{"ABC-DEF-1234-EXTRA", "ABC-DEF-1234"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := CleanTrackingID(tt.in); got != tt.want {
			t.Errorf("CleanTrackingID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmailMatches(t *testing.T) {
	tests := []struct {
		customer, stored string
		want             bool
	}{
		{"john@example.com", "john@example.com", true},
		{"John@Example.com ", "john@example.com", true},
		{"jane@example.com", "john@example.com,jane@example.com", true},
		{"eve@example.com", "john@example.com", false},
		{"", "john@example.com", false},
		{"not-an-email", "not-an-email", false},
	}
	for _, tt := range tests {
		if got := EmailMatches(tt.customer, tt.stored); got != tt.want {
			t.Errorf("EmailMatches(%q, %q) = %v, want %v", tt.customer, tt.stored, got, tt.want)
		}
	}
}
