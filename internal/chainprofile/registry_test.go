package chainprofile

import "testing"

func TestDefaultProfiles(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		network       Network
		confirmations int
		blockMs       int64
		native        Currency
	}{
		{Ethereum, 12, 12000, ETH},
		{Bitcoin, 6, 600000, BTC},
		{Polygon, 30, 2000, MATIC},
	}

	for _, c := range cases {
		t.Run(string(c.network), func(t *testing.T) {
			p, ok := r.Get(c.network)
			if !ok {
				t.Fatalf("expected network %s to be supported", c.network)
			}
			if p.RequiredConfirmations != c.confirmations {
				t.Errorf("confirmations = %d, want %d", p.RequiredConfirmations, c.confirmations)
			}
			if p.AverageBlockTimeMs != c.blockMs {
				t.Errorf("avg block ms = %d, want %d", p.AverageBlockTimeMs, c.blockMs)
			}
			if p.NativeCurrency != c.native {
				t.Errorf("native currency = %s, want %s", p.NativeCurrency, c.native)
			}
		})
	}
}

func TestRegistryCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(Network("ETHEREUM")); !ok {
		t.Fatal("expected uppercase network lookup to succeed")
	}
}

func TestUnsupportedNetwork(t *testing.T) {
	r := NewRegistry()
	if r.IsSupported(Network("solana")) {
		t.Fatal("solana should not be supported")
	}
}

func TestSupportedCurrencies(t *testing.T) {
	r := NewRegistry()

	eth, _ := r.Get(Ethereum)
	for _, c := range []Currency{ETH, USDC, USDT, DAI} {
		if !eth.SupportsCurrency(c) {
			t.Errorf("ethereum should support %s", c)
		}
	}
	if eth.SupportsCurrency(BTC) {
		t.Error("ethereum should not support BTC")
	}

	btc, _ := r.Get(Bitcoin)
	if !btc.SupportsCurrency(BTC) {
		t.Error("bitcoin should support BTC")
	}
	if btc.SupportsCurrency(USDC) {
		t.Error("bitcoin should not support USDC")
	}
}

func TestEVMAddressValidator(t *testing.T) {
	eth, _ := NewRegistry().Get(Ethereum)

	valid := "0x" + repeatHex("a", 40)
	if !eth.ValidateAddress(valid) {
		t.Errorf("expected %q to be a valid EVM address", valid)
	}
	if eth.ValidateAddress("not-an-address") {
		t.Error("expected invalid address to be rejected")
	}
	if eth.ValidateAddress("0x" + repeatHex("a", 39)) {
		t.Error("expected short address to be rejected")
	}
}

func TestEVMTxHashValidator(t *testing.T) {
	eth, _ := NewRegistry().Get(Ethereum)

	valid := "0x" + repeatHex("a", 64)
	if !eth.ValidateTxHash(valid) {
		t.Errorf("expected %q to be a valid EVM tx hash", valid)
	}
	if eth.ValidateTxHash("0x" + repeatHex("a", 63)) {
		t.Error("expected short hash to be rejected")
	}
}

func TestBitcoinAddressValidator(t *testing.T) {
	btc, _ := NewRegistry().Get(Bitcoin)

	valid := "bc1q" + repeatHex("a", 38)
	if !btc.ValidateAddress(valid) {
		t.Errorf("expected %q to be a valid bitcoin address", valid)
	}
	if btc.ValidateAddress("1BoatSLRHtKNngkdXEeobR76b53LETtpyT") {
		t.Error("expected legacy-format address to be rejected by the bech32-like shape check")
	}
}

func TestBitcoinTxHashValidator(t *testing.T) {
	btc, _ := NewRegistry().Get(Bitcoin)

	valid := repeatHex("a", 64)
	if !btc.ValidateTxHash(valid) {
		t.Errorf("expected %q to be a valid bitcoin tx hash", valid)
	}
	if btc.ValidateTxHash("0x" + valid) {
		t.Error("bitcoin tx hashes must not carry a 0x prefix")
	}
}

func repeatHex(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
