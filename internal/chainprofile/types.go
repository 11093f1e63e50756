// Package chainprofile is the Chain Profile Registry: per-network constants
// (confirmation threshold, average block time, native currency, supported
// token set) plus the address- and tx-hash-shape validators a watcher needs.
// The registry is immutable once constructed (spec §4.2).
package chainprofile

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network identifies a supported blockchain.
type Network string

const (
	Ethereum Network = "ethereum"
	Bitcoin  Network = "bitcoin"
	Polygon  Network = "polygon"
)

// Currency is a ticker symbol, e.g. "ETH", "BTC", "USDC".
type Currency string

const (
	ETH  Currency = "ETH"
	BTC  Currency = "BTC"
	MATIC Currency = "MATIC"
	USDC Currency = "USDC"
	USDT Currency = "USDT"
	DAI  Currency = "DAI"
)

// AddressValidator reports whether addr has the expected shape for a
// network. It never dials out and never checks a checksum beyond what the
// network's canonical format implies.
type AddressValidator func(addr string) bool

// TxHashValidator reports whether hash has the expected shape for a
// network's transaction identifiers.
type TxHashValidator func(hash string) bool

// Profile is the per-network record the registry hands back.
type Profile struct {
	Network               Network
	RequiredConfirmations int
	AverageBlockTimeMs    int64
	NativeCurrency        Currency
	SupportedCurrencies   map[Currency]struct{}
	ValidateAddress       AddressValidator
	ValidateTxHash        TxHashValidator
}

// SupportsCurrency reports whether c is one of the network's supported
// tokens.
func (p Profile) SupportsCurrency(c Currency) bool {
	_, ok := p.SupportedCurrencies[c]
	return ok
}

func currencySet(cs ...Currency) map[Currency]struct{} {
	set := make(map[Currency]struct{}, len(cs))
	for _, c := range cs {
		set[c] = struct{}{}
	}
	return set
}

// evmTxHashRe backs the EVM tx-hash validator, where go-ethereum's
// common.IsHexAddress doesn't apply (tx hashes have no equivalent helper in
// common, since the payment core never constructs a common.Hash).
var evmTxHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func validateEVMAddress(addr string) bool {
	return common.IsHexAddress(addr)
}

func validateEVMTxHash(hash string) bool {
	return evmTxHashRe.MatchString(hash)
}

// bitcoinAddressRe matches the bech32-like shape spec §4.2 calls for: a
// "bc1q" prefix followed by at least 38 more characters. This is
// intentionally a shape check, not a real bech32 checksum decode — the
// payment core's self-issued addresses (§4.1) are derived from a MAC, not
// real bech32 data, so a genuine bech32 decoder would reject them.
var bitcoinAddressRe = regexp.MustCompile(`^bc1q[a-z0-9]{38,}$`)
var bitcoinTxHashRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

func validateBitcoinAddress(addr string) bool {
	return bitcoinAddressRe.MatchString(strings.ToLower(addr))
}

func validateBitcoinTxHash(hash string) bool {
	return bitcoinTxHashRe.MatchString(hash)
}
