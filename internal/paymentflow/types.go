package paymentflow

import (
	"github.com/shopspring/decimal"

	"github.com/arcsign/paymentcore/internal/chainprofile"
)

// State is one of the eight states a payment record can occupy, per
// spec §4.4.
type State string

const (
	Created    State = "created"
	Pending    State = "pending"
	Confirming State = "confirming"
	Confirmed  State = "confirmed"
	Completed  State = "completed"
	Refunding  State = "refunding"
	Expired    State = "expired"
	Failed     State = "failed"
)

// transitions is the allowed-targets matrix from spec §4.4. A state absent
// from the map (Expired, Failed) is terminal.
var transitions = map[State][]State{
	Created:    {Pending, Expired, Failed},
	Pending:    {Confirming, Expired, Failed},
	Confirming: {Confirmed, Expired, Failed},
	Confirmed:  {Completed, Refunding, Failed},
	Completed:  {Refunding},
	Refunding:  {Completed},
}

func isAllowed(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// allStates enumerates the state set in a fixed order, for zero-filled
// histograms (get_state_distribution).
var allStates = []State{Created, Pending, Confirming, Confirmed, Completed, Refunding, Expired, Failed}

// Trigger labels the reason a transition was attempted, recorded in the
// state history and used to distinguish a reorg-to-Failed from an
// explicit fail_payment.
type Trigger string

const (
	TriggerTransactionDetected Trigger = "transaction_detected"
	TriggerConfirmationUpdate  Trigger = "confirmation_update"
	TriggerComplete            Trigger = "complete"
	TriggerFail                Trigger = "fail"
	TriggerExpire              Trigger = "expire"
	TriggerReorg               Trigger = "reorg"
)

// HistoryEntry is one append-only record of an accepted transition.
type HistoryEntry struct {
	From      State
	To        State
	Trigger   Trigger
	Timestamp int64
	Metadata  map[string]string
}

// FiatSnapshot is the fiat-currency context captured at creation time.
type FiatSnapshot struct {
	AmountMinorUnits int64
	Currency         string
	ExchangeRate     decimal.Decimal
}

// Payment is one payment record, per spec §3. The state machine is the
// sole mutator; every copy handed to a caller is deep enough that mutating
// it cannot reach the store (slices and maps are cloned on every read).
type Payment struct {
	ID             string
	WorkspaceID    string
	UserID         string
	SubscriptionID string // optional, empty if unset
	InvoiceID      string // optional, empty if unset

	Network               chainprofile.Network
	Currency              chainprofile.Currency
	PaymentAddress        string
	DerivationIndex       uint32
	RequiredConfirmations int

	ExpectedAmount decimal.Decimal
	ReceivedAmount decimal.Decimal
	Fiat           FiatSnapshot

	TxHash        string
	FromAddress   string
	BlockNumber   int64
	Confirmations int

	State        State
	StateHistory []HistoryEntry
	Version      int64

	CreatedAt    int64
	ExpiresAt    int64
	PendingAt    *int64
	ConfirmingAt *int64
	ConfirmedAt  *int64
	CompletedAt  *int64
	ExpiredAt    *int64
	FailedAt     *int64

	FailureReason string

	IsOverpayment       bool
	OverpaymentAmount   decimal.Decimal
	IsUnderpayment      bool
	UnderpaymentAmount  decimal.Decimal
	UnderpaymentDeadline *int64

	Reconciled   bool
	ReconciledAt *int64
}

// clone returns a deep-enough copy of p: every slice and map is copied, so
// a caller mutating the returned record cannot reach the store's copy.
func (p *Payment) clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p

	if p.StateHistory != nil {
		cp.StateHistory = make([]HistoryEntry, len(p.StateHistory))
		for i, h := range p.StateHistory {
			hc := h
			if h.Metadata != nil {
				hc.Metadata = make(map[string]string, len(h.Metadata))
				for k, v := range h.Metadata {
					hc.Metadata[k] = v
				}
			}
			cp.StateHistory[i] = hc
		}
	}

	cp.PendingAt = clonePtr(p.PendingAt)
	cp.ConfirmingAt = clonePtr(p.ConfirmingAt)
	cp.ConfirmedAt = clonePtr(p.ConfirmedAt)
	cp.CompletedAt = clonePtr(p.CompletedAt)
	cp.ExpiredAt = clonePtr(p.ExpiredAt)
	cp.FailedAt = clonePtr(p.FailedAt)
	cp.UnderpaymentDeadline = clonePtr(p.UnderpaymentDeadline)
	cp.ReconciledAt = clonePtr(p.ReconciledAt)

	return &cp
}

func clonePtr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// StateDistribution is a zero-filled histogram keyed by every state in the
// state set, per spec §4.4's query contract.
type StateDistribution map[State]int

func newStateDistribution() StateDistribution {
	d := make(StateDistribution, len(allStates))
	for _, s := range allStates {
		d[s] = 0
	}
	return d
}
