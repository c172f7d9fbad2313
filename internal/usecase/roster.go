package usecase

import (
	"strconv"
	"strings"

	"qrcheckin/internal/domain"
)

// Roster is a searchable snapshot of one event's attendees.
type Roster struct {
	attendees []domain.Attendee
}

func NewRoster(attendees []domain.Attendee) Roster {
	copied := make([]domain.Attendee, len(attendees))
	copy(copied, attendees)
	return Roster{attendees: copied}
}

// Filter matches term case-insensitively against name or email.
func (r Roster) Filter(term string) []domain.Attendee {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return r.attendees
	}

	matched := make([]domain.Attendee, 0, len(r.attendees))
	for _, attendee := range r.attendees {
		if strings.Contains(strings.ToLower(attendee.Name), term) ||
			strings.Contains(strings.ToLower(attendee.Email), term) {
			matched = append(matched, attendee)
		}
	}
	return matched
}

func (r Roster) CheckedIn() int {
	count := 0
	for _, attendee := range r.attendees {
		if attendee.CheckedIn {
			count++
		}
	}
	return count
}

// View renders the roster for a search term.
func (r Roster) View(term string) domain.RosterView {
	filtered := r.Filter(term)
	checkedIn := r.CheckedIn()
	return domain.RosterView{
		Attendees:       filtered,
		Total:           len(r.attendees),
		CheckedIn:       checkedIn,
		TotalLabel:      "Total: " + strconv.Itoa(len(r.attendees)),
		CheckedInLabel:  "Checked In: " + strconv.Itoa(checkedIn),
		NoSearchResults: strings.TrimSpace(term) != "" && len(filtered) == 0,
	}
}
