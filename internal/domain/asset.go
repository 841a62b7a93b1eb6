// Package domain defines the core value types of the arbitrage engine: assets,
// route steps, flash loan plans, settlement records, and the store interfaces
// implemented by the persistence and cache layers.
package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the conventional sentinel address representing the chain's
// base currency rather than a deployed token contract.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Asset identifies either the native base currency or a fungible token
// contract. It is an immutable value type; equality is address equality.
type Asset struct {
	addr common.Address
}

// NativeAsset returns the Asset representing the chain's base currency.
func NativeAsset() Asset {
	return Asset{addr: NativeAddress}
}

// TokenAsset returns the Asset for a fungible token contract address.
func TokenAsset(addr common.Address) Asset {
	return Asset{addr: addr}
}

// ParseAsset parses a hex address, accepting the literal "native" as an alias
// for the native sentinel.
func ParseAsset(s string) (Asset, error) {
	if strings.EqualFold(strings.TrimSpace(s), "native") {
		return NativeAsset(), nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("domain: invalid asset address %q", s)
	}
	return Asset{addr: common.HexToAddress(s)}, nil
}

// Address returns the underlying identity address.
func (a Asset) Address() common.Address {
	return a.addr
}

// IsNative reports whether the asset is the native base currency.
func (a Asset) IsNative() bool {
	return a.addr == NativeAddress
}

// IsZero reports whether the asset is the uninitialized zero value.
func (a Asset) IsZero() bool {
	return a.addr == (common.Address{})
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.addr.Hex()
}

// MarshalText implements encoding.TextMarshaler so assets round-trip through
// JSON payloads and TOML topology files.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := ParseAsset(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
