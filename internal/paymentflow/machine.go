// Package paymentflow implements the Payment Flow State Machine (spec
// §4.4): the authoritative, in-memory store of payment records and the
// only component that mutates them. It owns the transition matrix,
// version-based compare-and-swap, timestamp bookkeeping, and
// amount-discrepancy classification.
//
// Grounded on the teacher's src/chainadapter/storage (deep-copy-on-read
// store) and src/chainadapter/error.go (structured, non-panicking error
// results) generalized from a transaction store to a payment lifecycle
// store with an explicit CAS contract.
package paymentflow

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcsign/paymentcore/internal/chainprofile"
	"github.com/arcsign/paymentcore/internal/confirmation"
	"github.com/arcsign/paymentcore/internal/config"
	"github.com/arcsign/paymentcore/internal/deriver"
	"github.com/arcsign/paymentcore/internal/money"
	"github.com/arcsign/paymentcore/internal/paymentlog"
)

// Machine is the payment flow state machine. One Machine instance is one
// "process-wide value" in the sense of spec §9: tests construct fresh
// instances with New rather than relying on a package-level singleton.
type Machine struct {
	mu       sync.RWMutex
	store    *store
	registry *chainprofile.Registry
	deriver  *deriver.Deriver
	config   config.Config
	sink     paymentlog.Sink
}

// New builds a Machine over a chain profile registry and address deriver,
// keyed with cfg and logging to sink. sink may be paymentlog.Nop() for
// tests that don't care about log output.
func New(cfg config.Config, registry *chainprofile.Registry, addressDeriver *deriver.Deriver, sink paymentlog.Sink) *Machine {
	if sink == nil {
		sink = paymentlog.Nop()
	}
	return &Machine{
		store:    newStore(),
		registry: registry,
		deriver:  addressDeriver,
		config:   cfg,
		sink:     sink,
	}
}

// TransitionResult is returned by every operation that attempts to mutate
// a payment's state, per spec §4.4: a success flag, the state observed
// before and after the attempt, an immutable copy of the record, and an
// error on failure.
type TransitionResult struct {
	Success  bool
	Previous State
	Next     State
	Payment  *Payment
	Err      error
}

func failResult(state State, err error) *TransitionResult {
	return &TransitionResult{Success: false, Previous: state, Next: state, Err: err}
}

// CreatePaymentInput carries the arguments to CreatePayment.
type CreatePaymentInput struct {
	ID             string
	WorkspaceID    string
	UserID         string
	SubscriptionID string
	InvoiceID      string
	Network        chainprofile.Network
	Currency       chainprofile.Currency
	ExpectedAmount decimal.Decimal
	Fiat           FiatSnapshot
	Now            int64
}

// CreatePayment issues a new payment record: validates the network and
// currency, derives a unique receiving address, and sets the record to
// Created with version 0. Address collisions are a fatal programmer error
// per spec §4.1/§7 and are returned as a FlowError with Fatal set rather
// than panicking, so a caller embedding the core in a service can still
// log and shed the request.
func (m *Machine) CreatePayment(in CreatePaymentInput) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store.exists(in.ID) {
		return nil, newError(CodeDuplicatePayment, "payment %s already exists", in.ID)
	}

	profile, ok := m.registry.Get(in.Network)
	if !ok {
		return nil, newFatalError(CodeUnsupportedNetwork, "network %q is not supported", in.Network)
	}
	if !profile.SupportsCurrency(in.Currency) {
		return nil, newError(CodeUnsupportedCurrency, "currency %q is not supported on network %q", in.Currency, in.Network)
	}

	address, index, err := m.deriver.Allocate(in.Network, in.ID)
	if err != nil {
		fe := wrapError(CodeAddressCollision, err, "could not allocate address for payment %s", in.ID)
		fe.Fatal = true
		return nil, fe
	}
	if m.store.addressTaken(address) {
		return nil, newFatalError(CodeAddressCollision, "address %s is already assigned to an existing payment", address)
	}

	p := &Payment{
		ID:                    in.ID,
		WorkspaceID:           in.WorkspaceID,
		UserID:                in.UserID,
		SubscriptionID:        in.SubscriptionID,
		InvoiceID:             in.InvoiceID,
		Network:               in.Network,
		Currency:              in.Currency,
		PaymentAddress:        address,
		DerivationIndex:       index,
		RequiredConfirmations: profile.RequiredConfirmations,
		ExpectedAmount:        in.ExpectedAmount,
		ReceivedAmount:        decimal.Zero,
		Fiat:                  in.Fiat,
		State:                 Created,
		Version:               0,
		CreatedAt:             in.Now,
		ExpiresAt:             in.Now + m.config.PaymentWindow.Milliseconds(),
		OverpaymentAmount:     decimal.Zero,
		UnderpaymentAmount:    decimal.Zero,
	}
	m.store.put(p)

	m.sink.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("network", string(p.Network)),
		zap.String("currency", string(p.Currency)),
		zap.String("payment_address", p.PaymentAddress),
	)

	return p.clone(), nil
}

// NoExpectedVersion tells a mutating operation to CAS against whatever
// version the record currently holds rather than a caller-supplied
// snapshot. Pass an explicit version instead when the caller has read the
// record earlier and wants the optimistic-concurrency guarantee described
// in spec §5 — a stale read then loses the race instead of silently
// clobbering a concurrent update.
const NoExpectedVersion int64 = -1

func (m *Machine) resolveExpectedVersion(p *Payment, expectedVersion int64) int64 {
	if expectedVersion == NoExpectedVersion {
		return p.Version
	}
	return expectedVersion
}

// RecordTransactionDetected writes the observed on-chain transaction onto
// the payment, runs amount-discrepancy classification, and attempts the
// Created → Pending transition. A stale expectedVersion aborts before any
// field is written.
func (m *Machine) RecordTransactionDetected(id, txHash, fromAddress string, receivedAmount decimal.Decimal, expectedVersion, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}

	profile, ok := m.registry.Get(p.Network)
	if !ok {
		return failResult(p.State, newFatalError(CodeUnsupportedNetwork, "payment %s references unknown network %q", id, p.Network))
	}
	if !profile.ValidateTxHash(txHash) {
		return failResult(p.State, newError(CodeInvalidTxHash, "tx hash %q is not valid on network %q", txHash, p.Network))
	}

	resolved := m.resolveExpectedVersion(p, expectedVersion)
	if p.Version != resolved {
		return failResult(p.State, newError(CodeVersionMismatch,
			"version mismatch on payment %s: expected %d, found %d", p.ID, resolved, p.Version))
	}

	p.TxHash = txHash
	p.FromAddress = fromAddress
	p.ReceivedAmount = receivedAmount

	m.classifyDiscrepancy(p)

	return m.applyTransition(p, Pending, TriggerTransactionDetected, resolved, nil, now)
}

// UpdateConfirmations records a new confirmation count and block number,
// detects reorgs, and drives Pending→Confirming and Confirming→Confirmed
// transitions per spec §4.4 item 3. Every path, transitioning or not, is
// gated on expectedVersion per §5's race-protection contract: a stale
// caller aborts with no side effects even on the field-only update paths.
func (m *Machine) UpdateConfirmations(id string, newConfirmations int, blockNumber *int64, expectedVersion, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}

	resolved := m.resolveExpectedVersion(p, expectedVersion)
	if p.Version != resolved {
		return failResult(p.State, newError(CodeVersionMismatch,
			"version mismatch on payment %s: expected %d, found %d", p.ID, resolved, p.Version))
	}

	if confirmation.DetectReorg(p.Confirmations, newConfirmations) {
		m.sink.Security("reorg detected",
			zap.String("payment_id", p.ID),
			zap.Int("previous_confirmations", p.Confirmations),
			zap.Int("new_confirmations", newConfirmations),
		)

		p.Confirmations = newConfirmations
		if blockNumber != nil {
			p.BlockNumber = *blockNumber
		}

		if p.State == Confirmed {
			return m.applyTransition(p, Failed, TriggerReorg, resolved,
				map[string]string{"reason": "block reorganization detected after confirmation"}, now)
		}

		// Confirming (or any other non-Confirmed state): field update
		// only, no transition. Per spec §9 this path does not bump
		// version, matching the source's behaviour exactly.
		return &TransitionResult{Success: true, Previous: p.State, Next: p.State, Payment: p.clone()}
	}

	p.Confirmations = newConfirmations
	if blockNumber != nil {
		p.BlockNumber = *blockNumber
	}

	switch {
	case p.State == Pending && newConfirmations > 0:
		return m.applyTransition(p, Confirming, TriggerConfirmationUpdate, resolved, nil, now)
	case p.State == Confirming:
		if newConfirmations >= p.RequiredConfirmations {
			return m.applyTransition(p, Confirmed, TriggerConfirmationUpdate, resolved, nil, now)
		}
	}

	return &TransitionResult{Success: true, Previous: p.State, Next: p.State, Payment: p.clone()}
}

// CompletePayment transitions a Confirmed payment to Completed.
func (m *Machine) CompletePayment(id string, expectedVersion, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}
	return m.applyTransition(p, Completed, TriggerComplete, m.resolveExpectedVersion(p, expectedVersion), nil, now)
}

// FailPayment attempts a transition to Failed from whichever state the
// payment currently occupies, recording reason as the failure reason.
func (m *Machine) FailPayment(id, reason string, expectedVersion, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}
	return m.applyTransition(p, Failed, TriggerFail, m.resolveExpectedVersion(p, expectedVersion), map[string]string{"reason": reason}, now)
}

// ExpirePayment transitions a payment to Expired if its deadline has
// passed and it is still in an expirable state.
func (m *Machine) ExpirePayment(id string, expectedVersion, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}
	resolved := m.resolveExpectedVersion(p, expectedVersion)
	if p.Version != resolved {
		return failResult(p.State, newError(CodeVersionMismatch,
			"version mismatch on payment %s: expected %d, found %d", p.ID, resolved, p.Version))
	}
	if now < p.ExpiresAt {
		return failResult(p.State, newError(CodeNotYetExpired, "payment %s has not yet reached its expiry deadline", id))
	}
	if !expirable(p.State) {
		return failResult(p.State, newError(CodeNotExpirable, "cannot expire payment %s from state %s", id, p.State))
	}
	return m.applyTransition(p, Expired, TriggerExpire, resolved, nil, now)
}

func expirable(s State) bool {
	return s == Created || s == Pending || s == Confirming
}

// ProcessExpiredPayments sweeps every record whose deadline has passed and
// whose state is still expirable, expiring each and returning the expired
// records.
func (m *Machine) ProcessExpiredPayments(now int64) []*Payment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Payment
	for _, p := range m.store.all() {
		if now >= p.ExpiresAt && expirable(p.State) {
			res := m.applyTransition(p, Expired, TriggerExpire, p.Version, nil, now)
			if res.Success {
				expired = append(expired, res.Payment)
			}
		}
	}
	return expired
}

// Transition is the low-level CAS primitive underlying every other
// mutating operation (spec §4.4 item 8), exposed for collaborators that
// need to drive a transition directly (e.g. the Refunding loop, which has
// no dedicated convenience method since the spec never requires one).
func (m *Machine) Transition(id string, to State, trigger Trigger, expectedVersion int64, metadata map[string]string, now int64) *TransitionResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.store.get(id)
	if !ok {
		return failResult("", newError(CodeUnknownPayment, "payment %s not found", id))
	}
	return m.applyTransition(p, to, trigger, expectedVersion, metadata, now)
}

// applyTransition implements the transition contract of spec §4.4 item 8
// against an already-located, already-locked record.
func (m *Machine) applyTransition(p *Payment, to State, trigger Trigger, expectedVersion int64, metadata map[string]string, now int64) *TransitionResult {
	previous := p.State

	if p.Version != expectedVersion {
		return failResult(previous, newError(CodeVersionMismatch,
			"version mismatch on payment %s: expected %d, found %d", p.ID, expectedVersion, p.Version))
	}
	if !isAllowed(p.State, to) {
		return failResult(previous, newError(CodeInvalidTransition,
			"cannot transition payment %s from %s to %s", p.ID, p.State, to))
	}

	p.StateHistory = append(p.StateHistory, HistoryEntry{
		From:      p.State,
		To:        to,
		Trigger:   trigger,
		Timestamp: now,
		Metadata:  metadata,
	})
	p.State = to
	p.Version++
	setStateTimestamp(p, to, now)

	if to == Failed {
		if reason, ok := metadata["reason"]; ok {
			p.FailureReason = reason
		}
	}

	m.sink.Info("payment state transition",
		zap.String("payment_id", p.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(to)),
		zap.String("trigger", string(trigger)),
	)

	return &TransitionResult{Success: true, Previous: previous, Next: to, Payment: p.clone()}
}

// setStateTimestamp populates the *_at field for s on first entry only, per
// invariant 4: once set, a timestamp is never rewritten by a later
// transition (a Completed→Refunding→Completed loop keeps the original
// CompletedAt).
func setStateTimestamp(p *Payment, s State, now int64) {
	n := now
	switch s {
	case Pending:
		if p.PendingAt == nil {
			p.PendingAt = &n
		}
	case Confirming:
		if p.ConfirmingAt == nil {
			p.ConfirmingAt = &n
		}
	case Confirmed:
		if p.ConfirmedAt == nil {
			p.ConfirmedAt = &n
		}
	case Completed:
		if p.CompletedAt == nil {
			p.CompletedAt = &n
		}
	case Expired:
		if p.ExpiredAt == nil {
			p.ExpiredAt = &n
		}
	case Failed:
		if p.FailedAt == nil {
			p.FailedAt = &n
		}
	}
}

// classifyDiscrepancy implements the amount-discrepancy classification of
// spec §4.4: it runs against the already-locked record after
// ReceivedAmount has been set, before the Pending transition is attempted.
func (m *Machine) classifyDiscrepancy(p *Payment) {
	e := p.ExpectedAmount
	if e.IsZero() {
		return
	}
	r := p.ReceivedAmount
	d := r.Sub(e)
	ratio := money.Ratio(d, e)

	switch {
	case d.IsPositive() && ratio > m.config.OverpaymentThreshold:
		p.IsOverpayment = true
		p.OverpaymentAmount = d
		p.IsUnderpayment = false
		p.UnderpaymentAmount = decimal.Zero
		p.UnderpaymentDeadline = nil
	case d.IsNegative() && ratio > m.config.UnderpaymentTolerance:
		base := p.CreatedAt
		if p.PendingAt != nil {
			base = *p.PendingAt
		}
		deadline := base + m.config.UnderpaymentGracePeriod.Milliseconds()

		p.IsUnderpayment = true
		p.UnderpaymentAmount = d.Abs()
		p.UnderpaymentDeadline = &deadline
		p.IsOverpayment = false
		p.OverpaymentAmount = decimal.Zero
	default:
		p.IsOverpayment = false
		p.OverpaymentAmount = decimal.Zero
		p.IsUnderpayment = false
		p.UnderpaymentAmount = decimal.Zero
		p.UnderpaymentDeadline = nil
	}
}
