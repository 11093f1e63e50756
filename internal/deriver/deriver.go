// Package deriver implements the Address Deriver described in spec §4.1: a
// deterministic, self-issued per-payment address scheme built from two
// keyed MACs over the master seed. It is explicitly NOT BIP-32/44
// derivation — there is no extended key, no child key tree, and the
// "addresses" it produces are opaque identifiers shaped to pass a
// network's address validator, not spendable keys.
//
// Grounded on the keyed-derivation style of internal/services/crypto
// generalized to blake2b's native keyed-hash mode, which lets the deriver
// skip a separate HMAC construction entirely.
package deriver

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/arcsign/paymentcore/internal/chainprofile"
)

// Deriver holds the master seed and the bookkeeping needed for reverse
// lookup and collision detection. It is safe for concurrent use.
type Deriver struct {
	seed []byte

	mu           sync.RWMutex
	usedIndices  map[chainprofile.Network]map[uint32]struct{}
	nextFreeHint map[chainprofile.Network]uint64
	addrToID     map[string]string // lowercase(address) -> payment id
}

// New returns a Deriver keyed with seed. seed must be non-empty; it is the
// sole secret the derivation scheme depends on.
func New(seed []byte) *Deriver {
	if len(seed) == 0 {
		panic("deriver: empty master seed")
	}
	return &Deriver{
		seed:         seed,
		usedIndices:  make(map[chainprofile.Network]map[uint32]struct{}),
		nextFreeHint: make(map[chainprofile.Network]uint64),
		addrToID:     make(map[string]string),
	}
}

// keyedMAC computes a keyed 256-bit MAC over label using the master seed as
// key, per §4.1 step 1/2.
func (d *Deriver) keyedMAC(label string) []byte {
	h, err := blake2b.New256(d.seed)
	if err != nil {
		// blake2b.New256 only errors when the key exceeds 64 bytes; an
		// oversized seed is a programmer error, not a runtime condition.
		panic(fmt.Sprintf("deriver: master seed rejected by blake2b: %v", err))
	}
	h.Write([]byte(label))
	return h.Sum(nil)
}

// Derive computes the deterministic (address, derivation_index) pair for
// (network, paymentID). It is pure: it consults no state and registers
// nothing. Same inputs always produce the same outputs, even across fresh
// Deriver instances keyed with the same seed.
func (d *Deriver) Derive(network chainprofile.Network, paymentID string) (address string, index uint32) {
	indexMAC := d.keyedMAC("index:" + string(network) + ":" + paymentID)
	index = binary.BigEndian.Uint32(indexMAC[:4])

	addrLabel := "addr:" + string(network) + ":" + strconv.FormatUint(uint64(index), 10) + ":" + paymentID
	addrMAC := d.keyedMAC(addrLabel)
	digest := hex.EncodeToString(addrMAC)[:40]

	return formatAddress(network, digest), index
}

func formatAddress(network chainprofile.Network, digest string) string {
	switch network {
	case chainprofile.Bitcoin:
		return "bc1q" + digest
	default:
		// EVM-family networks (Ethereum, Polygon).
		return "0x" + digest
	}
}

// Allocate derives the address for (network, paymentID), registers it in
// the reverse index and the per-network used-indices set, and returns the
// result. It fails if the freshly derived address collides with one
// already on file for a different payment — a condition that should be
// cryptographically impossible and signals a programmer error (e.g. a
// reused or degenerate seed) rather than a runtime condition to recover
// from.
func (d *Deriver) Allocate(network chainprofile.Network, paymentID string) (address string, index uint32, err error) {
	address, index = d.Derive(network, paymentID)
	key := strings.ToLower(address)

	d.mu.Lock()
	defer d.mu.Unlock()

	if existingID, ok := d.addrToID[key]; ok && existingID != paymentID {
		return "", 0, fmt.Errorf("deriver: address collision for network %s: payment %s derived the same address as existing payment %s",
			network, paymentID, existingID)
	}

	d.addrToID[key] = paymentID
	if d.usedIndices[network] == nil {
		d.usedIndices[network] = make(map[uint32]struct{})
	}
	d.usedIndices[network][index] = struct{}{}

	return address, index, nil
}

// AllocateNextIndex returns the smallest non-negative integer not yet used
// for network, per §4.1's separate sequential-allocation path, and marks
// it used. It is a separate mechanism from the content-addressed
// Derive/Allocate path but shares its per-network used-index set, so it
// skips indices Allocate has already recorded; it exists for callers that
// need sequential indices rather than indices derived from a payment id.
func (d *Deriver) AllocateNextIndex(network chainprofile.Network) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	used := d.usedIndices[network]
	candidate := d.nextFreeHint[network]
	for {
		if used == nil {
			break
		}
		if _, taken := used[uint32(candidate)]; !taken {
			break
		}
		candidate++
	}

	if used == nil {
		used = make(map[uint32]struct{})
		d.usedIndices[network] = used
	}
	used[uint32(candidate)] = struct{}{}
	d.nextFreeHint[network] = candidate + 1

	return candidate
}

// IsOurAddress reports whether addr was issued by this deriver, matched
// case-insensitively.
func (d *Deriver) IsOurAddress(addr string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.addrToID[strings.ToLower(addr)]
	return ok
}

// PaymentIDForAddress returns the payment ID an address was issued for, and
// whether the address is known to this deriver. Lookup is case-insensitive.
func (d *Deriver) PaymentIDForAddress(addr string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.addrToID[strings.ToLower(addr)]
	return id, ok
}
