package validate

import (
	"encoding/json"
	"fmt"
)

// Status is the admission decision reported by the event console.
type Status string

const (
	StatusValid       Status = "VALID"
	StatusAlreadyUsed Status = "ALREADY_USED"
	StatusBlocked     Status = "BLOCKED"
	StatusNotFound    Status = "NOT_FOUND"
	StatusWrongEvent  Status = "WRONG_EVENT"
	StatusExpired     Status = "EXPIRED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusValid, StatusAlreadyUsed, StatusBlocked, StatusNotFound, StatusWrongEvent, StatusExpired:
		return true
	default:
		return false
	}
}

// Admitted reports whether the decision admits the ticket holder.
func (s Status) Admitted() bool { return s == StatusValid }

func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	status := Status(str)
	if !status.IsValid() {
		return fmt.Errorf("invalid validation status: %q", str)
	}
	*s = status
	return nil
}

// TicketSummary is the opaque ticket detail the console attaches to a
// decision. Every field beyond the id is optional; absent fields stay nil
// rather than being probed for.
type TicketSummary struct {
	ID     string  `json:"id"`
	Holder *string `json:"holder,omitempty"`
	Tier   *string `json:"tier,omitempty"`
	Seat   *string `json:"seat,omitempty"`
}

// Result is the console's decision for one submitted code.
type Result struct {
	Status  Status         `json:"status"`
	Ticket  *TicketSummary `json:"ticket,omitempty"`
	Message string         `json:"message"`
}

// Outcome is what the validator emits for each accepted submission: exactly
// one of Result or Err is set. Err means the call itself failed, which is
// distinct from a structured rejection.
type Outcome struct {
	Code   string
	Result *Result
	Err    error
}
