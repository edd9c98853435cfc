package verification

import (
	"time"

	"shikkha/internal/certificate"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

// State is the observable progress of one verification attempt.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateValid    State = "valid"
	StateRevoked  State = "revoked"
	StateNotFound State = "not_found"
	StateError    State = "error"
)

// IsTerminal reports whether s ends an attempt.
func (s State) IsTerminal() bool {
	switch s {
	case StateValid, StateRevoked, StateNotFound, StateError:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	return string(s)
}

// Attempt tracks a single verification. It starts Idle, moves to Pending
// once the ledger is queried and then settles in exactly one terminal state.
// A new verification needs a new Attempt.
type Attempt struct {
	state State
}

func NewAttempt() *Attempt {
	return &Attempt{state: StateIdle}
}

func (a *Attempt) State() State {
	return a.state
}

// Start moves Idle to Pending.
func (a *Attempt) Start() error {
	if a.state != StateIdle {
		return dErrors.New(dErrors.CodeInvariantViolation, "verification already started: "+a.state.String())
	}
	a.state = StatePending
	return nil
}

// Resolve moves Pending to the terminal state to.
func (a *Attempt) Resolve(to State) error {
	if a.state != StatePending {
		return dErrors.New(dErrors.CodeInvariantViolation, "verification is not pending: "+a.state.String())
	}
	if !to.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot resolve verification to "+to.String())
	}
	a.state = to
	return nil
}

// CertificateView is the ledger data disclosed to a verifier.
type CertificateView struct {
	Fields    certificate.Fields
	Issuer    id.Address
	IssuedAt  time.Time
	Status    certificate.Status
	RevokedAt *time.Time
}

func viewOf(rec *certificate.Record) *CertificateView {
	v := &CertificateView{
		Fields:   rec.Fields,
		Issuer:   rec.Issuer,
		IssuedAt: rec.IssuedAt,
		Status:   rec.Status,
	}
	if rec.RevokedAt != nil {
		at := *rec.RevokedAt
		v.RevokedAt = &at
	}
	return v
}

// Outcome is the terminal result of a verification. Certificate is set for
// Valid and Revoked. DocumentLocator and DocumentURL are best effort and only
// ever set for Valid. Cause carries the ledger failure behind Error.
type Outcome struct {
	State           State
	CertificateID   id.CertificateID
	Certificate     *CertificateView
	DocumentLocator id.DocumentLocator
	DocumentURL     string
	Cause           error
}
