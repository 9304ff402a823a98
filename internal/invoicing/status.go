package invoicing

import "strings"

// Status is an invoice payment status. PENDING is the only non-terminal
// value; every legal transition moves a pending invoice into exactly one of
// the four terminal statuses.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled, StatusExpired},
	StatusPaid:      {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// ParseStatus canonicalizes a wire value. Input is case-insensitive, the
// stored form is upper-case. ok is false for anything outside the enum.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToUpper(strings.TrimSpace(raw)))
	_, known := transitions[status]
	return status, known
}

func (s Status) IsTerminal() bool {
	next, known := transitions[s]
	return known && len(next) == 0
}

// CanTransitionTo reports whether s -> next is a legal move.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
