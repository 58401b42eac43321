package domain

import "fmt"

// Network identifies the Solana cluster a record belongs to.
type Network string

const (
	NetworkDevnet  Network = "devnet"
	NetworkMainnet Network = "mainnet"
)

// String returns the string representation of Network.
func (n Network) String() string {
	return string(n)
}

// IsValid checks if the network is a known cluster.
func (n Network) IsValid() bool {
	return n == NetworkDevnet || n == NetworkMainnet
}

// ParseNetwork converts a config or request value into a Network.
func ParseNetwork(s string) (Network, error) {
	n := Network(s)
	if !n.IsValid() {
		return "", fmt.Errorf("%w: unknown network %q", ErrValidation, s)
	}
	return n, nil
}
