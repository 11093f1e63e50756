// Package reconciler implements the Reconciler described in spec §4.5: a
// bucketing sweep over the full payment population that partitions every
// record into exactly one bucket and emits human-readable issue strings.
//
// Grounded on the teacher's reconciliation style absent a direct analogue
// in the retrieval pack — src/chainadapter has no population-wide sweep —
// so this package follows the same plain-function, no-framework shape as
// internal/services/coinregistry's registry walk, generalized from a
// lookup table to a full-store bucketing pass.
package reconciler

import (
	"fmt"

	"github.com/arcsign/paymentcore/internal/money"
	"github.com/arcsign/paymentcore/internal/paymentflow"
)

// Summary is the report one reconciliation run produces.
type Summary struct {
	Total         int
	Balanced      int
	Expired       []*paymentflow.Payment
	Orphans       []*paymentflow.Payment
	Overpayments  []*paymentflow.Payment
	Underpayments []*paymentflow.Payment
	Issues        []string
}

// machine is the subset of *paymentflow.Machine the reconciler depends on,
// so it can be exercised with a fake store in tests without reaching into
// paymentflow internals.
type machine interface {
	ListAll() []*paymentflow.Payment
	MarkReconciled(id string, now int64)
}

// Run walks every payment in m and buckets it per spec §4.5: expired →
// orphan → overpayment → underpayment → balanced, mutually exclusive in
// that priority order. After bucketing, every Completed record not yet
// reconciled is marked reconciled.
func Run(m machine, now int64) Summary {
	payments := m.ListAll()

	summary := Summary{Total: len(payments)}

	for _, p := range payments {
		switch {
		case now >= p.ExpiresAt && isExpirable(p.State):
			summary.Expired = append(summary.Expired, p)

		case isOrphan(p):
			summary.Orphans = append(summary.Orphans, p)
			summary.Issues = append(summary.Issues,
				fmt.Sprintf("Orphan payment: %s has no subscription/invoice", p.ID))

		case p.IsOverpayment:
			summary.Overpayments = append(summary.Overpayments, p)
			summary.Issues = append(summary.Issues,
				fmt.Sprintf("Overpayment: %s received %s (expected %s)",
					p.ID, money.Format(p.ReceivedAmount), money.Format(p.ExpectedAmount)))

		case p.IsUnderpayment:
			summary.Underpayments = append(summary.Underpayments, p)
			if p.UnderpaymentDeadline != nil && now > *p.UnderpaymentDeadline {
				summary.Issues = append(summary.Issues,
					fmt.Sprintf("Underpayment expired: %s received %s (expected %s)",
						p.ID, money.Format(p.ReceivedAmount), money.Format(p.ExpectedAmount)))
			}

		case p.State == paymentflow.Confirmed || p.State == paymentflow.Completed:
			summary.Balanced++
		}

		if p.State == paymentflow.Completed && !p.Reconciled {
			m.MarkReconciled(p.ID, now)
		}
	}

	return summary
}

func isExpirable(s paymentflow.State) bool {
	return s == paymentflow.Created || s == paymentflow.Pending || s == paymentflow.Confirming
}

func isOrphan(p *paymentflow.Payment) bool {
	return p.WorkspaceID == "" || (p.SubscriptionID == "" && p.InvoiceID == "")
}
