package paymentflow_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/paymentcore/internal/chainprofile"
	"github.com/arcsign/paymentcore/internal/config"
	"github.com/arcsign/paymentcore/internal/deriver"
	"github.com/arcsign/paymentcore/internal/paymentflow"
	"github.com/arcsign/paymentcore/internal/paymentlog"
	"github.com/arcsign/paymentcore/internal/reconciler"
)

func newTestMachine(t *testing.T) *paymentflow.Machine {
	t.Helper()
	cfg := config.Test()
	registry := chainprofile.NewRegistry()
	addressDeriver := deriver.New(cfg.MasterSeed)
	return paymentflow.New(cfg, registry, addressDeriver, paymentlog.Nop())
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Scenario A — happy ETH.
func TestScenarioA_HappyETH(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-A",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	})
	require.NoError(t, err)

	txHash := "0x" + strings.Repeat("a", 64)
	fromAddr := "0x" + strings.Repeat("b", 40)

	res := m.RecordTransactionDetected(payment.ID, txHash, fromAddr, amt("1.00000000"), paymentflow.NoExpectedVersion, now+1)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Pending, res.Next)

	res = m.UpdateConfirmations(payment.ID, 1, nil, paymentflow.NoExpectedVersion, now+2)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirming, res.Next)

	res = m.UpdateConfirmations(payment.ID, 12, nil, paymentflow.NoExpectedVersion, now+3)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirmed, res.Next)

	res = m.CompletePayment(payment.ID, paymentflow.NoExpectedVersion, now+4)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Completed, res.Next)

	final := res.Payment
	require.Equal(t, paymentflow.Completed, final.State)
	require.EqualValues(t, 4, final.Version)
	require.False(t, final.IsOverpayment)
	require.False(t, final.IsUnderpayment)
	require.Len(t, final.StateHistory, 4)
}

// Scenario B — BTC underpayment outside tolerance.
func TestScenarioB_BTCUnderpayment(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-B",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Bitcoin,
		Currency:       chainprofile.BTC,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	})
	require.NoError(t, err)

	txHash := strings.Repeat("a", 64)
	res := m.RecordTransactionDetected(payment.ID, txHash, "bc1qsender", amt("0.50000000"), paymentflow.NoExpectedVersion, now+1)
	require.True(t, res.Success)
	require.True(t, res.Payment.IsUnderpayment)
	require.True(t, res.Payment.UnderpaymentAmount.Equal(amt("0.50000000")))
	require.NotNil(t, res.Payment.UnderpaymentDeadline)
	require.EqualValues(t, now+15*60*1000, *res.Payment.UnderpaymentDeadline)

	m.UpdateConfirmations(payment.ID, 1, nil, paymentflow.NoExpectedVersion, now+2)
	res = m.UpdateConfirmations(payment.ID, 6, nil, paymentflow.NoExpectedVersion, now+2)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirmed, res.Next)

	res = m.CompletePayment(payment.ID, paymentflow.NoExpectedVersion, now+3)
	require.True(t, res.Success)

	summary := reconciler.Run(m, now+20*60*1000)
	foundUnderpayment := false
	for _, p := range summary.Underpayments {
		if p.ID == "pay-B" {
			foundUnderpayment = true
		}
	}
	require.True(t, foundUnderpayment, "expected pay-B in underpayments bucket")

	foundIssue := false
	for _, issue := range summary.Issues {
		if strings.Contains(issue, "Underpayment expired") {
			foundIssue = true
		}
	}
	require.True(t, foundIssue, "expected an 'Underpayment expired' issue")
}

// Scenario C — Polygon threshold.
func TestScenarioC_PolygonThreshold(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-C",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Polygon,
		Currency:       chainprofile.MATIC,
		ExpectedAmount: amt("10.00000000"),
		Now:            now,
	})
	require.NoError(t, err)

	txHash := "0x" + strings.Repeat("c", 64)
	res := m.RecordTransactionDetected(payment.ID, txHash, "0x"+strings.Repeat("d", 40), amt("10.00000000"), paymentflow.NoExpectedVersion, now+1)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Pending, res.Next)

	res = m.UpdateConfirmations(payment.ID, 15, nil, paymentflow.NoExpectedVersion, now+2)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirming, res.Payment.State)

	res = m.UpdateConfirmations(payment.ID, 29, nil, paymentflow.NoExpectedVersion, now+3)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirming, res.Payment.State)

	res = m.UpdateConfirmations(payment.ID, 30, nil, paymentflow.NoExpectedVersion, now+4)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Confirmed, res.Payment.State)
}

// Scenario D — reorg after confirmation.
func TestScenarioD_ReorgAfterConfirmation(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-D",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	})
	require.NoError(t, err)

	txHash := "0x" + strings.Repeat("a", 64)
	m.RecordTransactionDetected(payment.ID, txHash, "0x"+strings.Repeat("b", 40), amt("1.00000000"), paymentflow.NoExpectedVersion, now+1)
	m.UpdateConfirmations(payment.ID, 1, nil, paymentflow.NoExpectedVersion, now+2)
	res := m.UpdateConfirmations(payment.ID, 12, nil, paymentflow.NoExpectedVersion, now+3)
	require.Equal(t, paymentflow.Confirmed, res.Payment.State)

	res = m.UpdateConfirmations(payment.ID, 3, nil, paymentflow.NoExpectedVersion, now+4)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Failed, res.Payment.State)
	require.Contains(t, res.Payment.FailureReason, "reorg")
}

// Scenario E — expiry sweep.
func TestScenarioE_ExpirySweep(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	for _, id := range []string{"pay-E1", "pay-E2", "pay-E3"} {
		_, err := m.CreatePayment(paymentflow.CreatePaymentInput{
			ID:             id,
			WorkspaceID:    "ws-1",
			UserID:         "user-1",
			InvoiceID:      "inv-" + id,
			Network:        chainprofile.Ethereum,
			Currency:       chainprofile.ETH,
			ExpectedAmount: amt("1.00000000"),
			Now:            now,
		})
		require.NoError(t, err)
	}

	txHash := "0x" + strings.Repeat("a", 64)
	m.RecordTransactionDetected("pay-E3", txHash, "0x"+strings.Repeat("b", 40), amt("1.00000000"), paymentflow.NoExpectedVersion, now+1)
	m.UpdateConfirmations("pay-E3", 1, nil, paymentflow.NoExpectedVersion, now+2)
	m.UpdateConfirmations("pay-E3", 12, nil, paymentflow.NoExpectedVersion, now+2)
	res := m.CompletePayment("pay-E3", paymentflow.NoExpectedVersion, now+3)
	require.Equal(t, paymentflow.Completed, res.Payment.State)

	expired := m.ProcessExpiredPayments(now + 31*60*1000)
	require.Len(t, expired, 2)

	third, err := m.GetPayment("pay-E3")
	require.NoError(t, err)
	require.Equal(t, paymentflow.Completed, third.State)
}

// Scenario F — version CAS race.
func TestScenarioF_VersionCASRace(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-F",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	})
	require.NoError(t, err)
	require.EqualValues(t, 0, payment.Version)

	staleVersion := payment.Version

	res := m.FailPayment(payment.ID, "manual failure", staleVersion, now+1)
	require.True(t, res.Success)
	require.Equal(t, paymentflow.Failed, res.Payment.State)
	require.EqualValues(t, 1, res.Payment.Version)

	res = m.ExpirePayment(payment.ID, staleVersion, now+2)
	require.False(t, res.Success)
	require.ErrorContains(t, res.Err, "version mismatch")

	final, err := m.GetPayment(payment.ID)
	require.NoError(t, err)
	require.Equal(t, paymentflow.Failed, final.State)
	require.Len(t, final.StateHistory, 1)
}

func TestInvalidTransitionRejected(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-invalid",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	})
	require.NoError(t, err)

	res := m.CompletePayment(payment.ID, paymentflow.NoExpectedVersion, now+1)
	require.False(t, res.Success)
	require.ErrorContains(t, res.Err, "invalid_transition")
}

func TestDuplicatePaymentRejected(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	in := paymentflow.CreatePaymentInput{
		ID:             "pay-dup",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: amt("1.00000000"),
		Now:            now,
	}
	_, err := m.CreatePayment(in)
	require.NoError(t, err)

	_, err = m.CreatePayment(in)
	require.Error(t, err)
	fe, ok := err.(*paymentflow.FlowError)
	require.True(t, ok)
	require.Equal(t, paymentflow.CodeDuplicatePayment, fe.Code)
}

func TestUnsupportedCurrencyRejected(t *testing.T) {
	m := newTestMachine(t)
	_, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-badcur",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Bitcoin,
		Currency:       chainprofile.USDC,
		ExpectedAmount: amt("1.00000000"),
		Now:            1700000000000,
	})
	require.Error(t, err)
	fe, ok := err.(*paymentflow.FlowError)
	require.True(t, ok)
	require.Equal(t, paymentflow.CodeUnsupportedCurrency, fe.Code)
}

func TestAddressUniquenessAcrossPayments(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	p1, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID: "pay-uniq-1", WorkspaceID: "ws-1", UserID: "user-1", InvoiceID: "inv-1",
		Network: chainprofile.Ethereum, Currency: chainprofile.ETH, ExpectedAmount: amt("1"), Now: now,
	})
	require.NoError(t, err)

	p2, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID: "pay-uniq-2", WorkspaceID: "ws-1", UserID: "user-1", InvoiceID: "inv-2",
		Network: chainprofile.Ethereum, Currency: chainprofile.ETH, ExpectedAmount: amt("1"), Now: now,
	})
	require.NoError(t, err)

	require.NotEqual(t, strings.ToLower(p1.PaymentAddress), strings.ToLower(p2.PaymentAddress))
}

func TestStateDistributionIsZeroFilled(t *testing.T) {
	m := newTestMachine(t)
	dist := m.GetStateDistribution()
	require.Len(t, dist, 8)
	require.Equal(t, 0, dist[paymentflow.Created])
	require.Equal(t, 0, dist[paymentflow.Completed])
}

func TestHistoryLengthMatchesVersion(t *testing.T) {
	m := newTestMachine(t)
	now := int64(1700000000000)

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID: "pay-hist", WorkspaceID: "ws-1", UserID: "user-1", InvoiceID: "inv-1",
		Network: chainprofile.Ethereum, Currency: chainprofile.ETH, ExpectedAmount: amt("1"), Now: now,
	})
	require.NoError(t, err)
	require.EqualValues(t, len(payment.StateHistory), payment.Version)

	res := m.FailPayment(payment.ID, "test", paymentflow.NoExpectedVersion, now+1)
	require.True(t, res.Success)
	require.EqualValues(t, len(res.Payment.StateHistory), res.Payment.Version)
}
