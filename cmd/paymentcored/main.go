// Command paymentcored is a demonstration CLI for the payment core: it
// wires the chain profile registry, address deriver, payment flow machine
// and reconciler together and drives them from a handful of subcommands.
// It is not a server; it exists to exercise the five components
// end-to-end the way a real integration would, matching the teacher's
// manual switch-dispatch CLI rather than pulling in a flag-parsing
// framework for a handful of subcommands.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arcsign/paymentcore/internal/chainprofile"
	"github.com/arcsign/paymentcore/internal/config"
	"github.com/arcsign/paymentcore/internal/deriver"
	"github.com/arcsign/paymentcore/internal/paymentflow"
	"github.com/arcsign/paymentcore/internal/paymentlog"
	"github.com/arcsign/paymentcore/internal/reconciler"
)

// Version is the paymentcored build version.
const Version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sink := paymentlog.New(logger)

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "using built-in test configuration: %v\n", err)
		cfg = config.Test()
	}

	registry := chainprofile.NewRegistry()
	addressDeriver := deriver.New(cfg.MasterSeed)
	machine := paymentflow.New(cfg, registry, addressDeriver, sink)

	switch command := os.Args[1]; command {
	case "version":
		fmt.Println("paymentcored", Version)
	case "demo":
		runDemo(machine)
	case "reconcile-demo":
		runReconcileDemo(machine)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: paymentcored <command>")
	fmt.Println("commands:")
	fmt.Println("  version          print the build version")
	fmt.Println("  demo             walk one payment through its full lifecycle")
	fmt.Println("  reconcile-demo   create a small population and run reconciliation")
}

func runDemo(m *paymentflow.Machine) {
	now := time.Now().UnixMilli()

	payment, err := m.CreatePayment(paymentflow.CreatePaymentInput{
		ID:             "pay-demo-1",
		WorkspaceID:    "ws-1",
		UserID:         "user-1",
		InvoiceID:      "inv-1",
		Network:        chainprofile.Ethereum,
		Currency:       chainprofile.ETH,
		ExpectedAmount: decimal.RequireFromString("1.00000000"),
		Now:            now,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create_payment failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created %s at address %s, expires at %d\n", payment.ID, payment.PaymentAddress, payment.ExpiresAt)

	txHash := "0x" + repeat("a", 64)
	fromAddr := "0x" + repeat("b", 40)
	res := m.RecordTransactionDetected(payment.ID, txHash, fromAddr, decimal.RequireFromString("1.00000000"), paymentflow.NoExpectedVersion, now+1000)
	reportResult("record_transaction_detected", res)

	res = m.UpdateConfirmations(payment.ID, 1, nil, paymentflow.NoExpectedVersion, now+2000)
	reportResult("update_confirmations(1)", res)

	res = m.UpdateConfirmations(payment.ID, 12, nil, paymentflow.NoExpectedVersion, now+3000)
	reportResult("update_confirmations(12)", res)

	res = m.CompletePayment(payment.ID, paymentflow.NoExpectedVersion, now+4000)
	reportResult("complete_payment", res)

	final, _ := m.GetPayment(payment.ID)
	fmt.Printf("final state=%s version=%d history_len=%d\n", final.State, final.Version, len(final.StateHistory))
}

func reportResult(op string, res *paymentflow.TransitionResult) {
	if res.Err != nil {
		fmt.Printf("%s: failed: %v\n", op, res.Err)
		return
	}
	fmt.Printf("%s: %s -> %s (version %d)\n", op, res.Previous, res.Next, res.Payment.Version)
}

func runReconcileDemo(m *paymentflow.Machine) {
	now := time.Now().UnixMilli()

	for i := 0; i < 3; i++ {
		id := "pay-rec-" + strconv.Itoa(i)
		_, err := m.CreatePayment(paymentflow.CreatePaymentInput{
			ID:             id,
			WorkspaceID:    "ws-1",
			UserID:         "user-1",
			InvoiceID:      "inv-" + strconv.Itoa(i),
			Network:        chainprofile.Polygon,
			Currency:       chainprofile.MATIC,
			ExpectedAmount: decimal.RequireFromString("10.00000000"),
			Now:            now,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create_payment failed: %v\n", err)
			os.Exit(1)
		}
	}

	summary := reconciler.Run(m, now+31*time.Minute.Milliseconds())
	fmt.Printf("total=%d balanced=%d expired=%d orphans=%d overpayments=%d underpayments=%d\n",
		summary.Total, summary.Balanced, len(summary.Expired), len(summary.Orphans),
		len(summary.Overpayments), len(summary.Underpayments))
	for _, issue := range summary.Issues {
		fmt.Println("issue:", issue)
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
