package governance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InterruptStatus tracks an interrupt record's lifecycle.
type InterruptStatus string

const (
	InterruptPending  InterruptStatus = "PENDING"
	InterruptApproved InterruptStatus = "APPROVED"
	InterruptRejected InterruptStatus = "REJECTED"
)

// InterruptRecord captures one pause point awaiting a human decision.
type InterruptRecord struct {
	ID        string          `json:"id"`
	RequestID string          `json:"request_id"`
	Action    string          `json:"action"`
	State     map[string]any  `json:"state,omitempty"`
	Status    InterruptStatus `json:"status"`
	Approver  string          `json:"approver,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HumanInterrupt is the typed error the gateway raises to pause execution.
// The orchestrator pattern-matches it (errors.As) and transitions to
// HUMAN_REQUIRED rather than treating it as a generic failure.
type HumanInterrupt struct {
	Record *InterruptRecord
}

// Error implements error.
func (h *HumanInterrupt) Error() string {
	return fmt.Sprintf("human interrupt %s: %s", h.Record.ID, h.Record.Action)
}

// Interrupt creates a pending approval request for action, stores an
// interrupt record, and returns a *HumanInterrupt carrying it. Callers are
// expected to return the error up to the orchestrator.
func (g *Gateway) Interrupt(action string, state map[string]any) *HumanInterrupt {
	req := g.CreateApprovalRequest(action, "execution interrupted: "+action, "", "gateway", nil, action)

	record := &InterruptRecord{
		ID:        uuid.NewString(),
		RequestID: req.RequestID,
		Action:    action,
		State:     state,
		Status:    InterruptPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	g.mu.Lock()
	g.interrupts[record.ID] = record
	g.mu.Unlock()
	return &HumanInterrupt{Record: record}
}

// Resume advances a pending interrupt to APPROVED or REJECTED and resolves
// the backing approval request accordingly.
func (g *Gateway) Resume(interruptID string, approved bool, approver, reason string, payload map[string]any) (*InterruptRecord, error) {
	g.mu.Lock()
	record, ok := g.interrupts[interruptID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("governance: interrupt %s not found", interruptID)
	}

	if err := g.resolve(record.RequestID, approver, approved, reason); err != nil && !isNotFound(err) {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if approved {
		record.Status = InterruptApproved
	} else {
		record.Status = InterruptRejected
	}
	record.Approver = approver
	record.Reason = reason
	record.Payload = payload
	record.UpdatedAt = time.Now().UTC()
	return record, nil
}

// GetInterrupt returns the record for id.
func (g *Gateway) GetInterrupt(id string) (*InterruptRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.interrupts[id]
	return r, ok
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}
