package chainprofile

import "strings"

// Registry holds the static, immutable-after-construction set of supported
// network profiles, indexed for case-insensitive lookup the way
// coinregistry.Registry indexes by symbol.
type Registry struct {
	profiles map[Network]Profile
}

// NewRegistry builds the registry with the three networks spec §4.2
// describes: Ethereum, Bitcoin, Polygon.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[Network]Profile)}

	r.addProfile(Profile{
		Network:               Ethereum,
		RequiredConfirmations: 12,
		AverageBlockTimeMs:    12000,
		NativeCurrency:        ETH,
		SupportedCurrencies:   currencySet(ETH, USDC, USDT, DAI),
		ValidateAddress:       validateEVMAddress,
		ValidateTxHash:        validateEVMTxHash,
	})

	r.addProfile(Profile{
		Network:               Bitcoin,
		RequiredConfirmations: 6,
		AverageBlockTimeMs:    600000,
		NativeCurrency:        BTC,
		SupportedCurrencies:   currencySet(BTC),
		ValidateAddress:       validateBitcoinAddress,
		ValidateTxHash:        validateBitcoinTxHash,
	})

	r.addProfile(Profile{
		Network:               Polygon,
		RequiredConfirmations: 30,
		AverageBlockTimeMs:    2000,
		NativeCurrency:        MATIC,
		SupportedCurrencies:   currencySet(MATIC, USDC, USDT, DAI),
		ValidateAddress:       validateEVMAddress,
		ValidateTxHash:        validateEVMTxHash,
	})

	return r
}

func (r *Registry) addProfile(p Profile) {
	r.profiles[normalizeNetwork(p.Network)] = p
}

func normalizeNetwork(n Network) Network {
	return Network(strings.ToLower(string(n)))
}

// Get returns the profile for network, case-insensitively, and whether it
// is supported at all.
func (r *Registry) Get(network Network) (Profile, bool) {
	p, ok := r.profiles[normalizeNetwork(network)]
	return p, ok
}

// IsSupported reports whether network has a registered profile.
func (r *Registry) IsSupported(network Network) bool {
	_, ok := r.Get(network)
	return ok
}

// Networks returns the supported networks. Order is not guaranteed.
func (r *Registry) Networks() []Network {
	out := make([]Network, 0, len(r.profiles))
	for n := range r.profiles {
		out = append(out, n)
	}
	return out
}
