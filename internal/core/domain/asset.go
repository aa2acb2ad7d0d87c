package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// SOLDecimals is the number of fractional digits of one SOL.
	SOLDecimals = 9
	// LamportsPerSOL is 10^SOLDecimals.
	LamportsPerSOL uint64 = 1_000_000_000
	// DisplayDecimals is how many fractional digits a balance is shown and cached with.
	DisplayDecimals = 4

	// NativeMint is the wrapped SOL mint the aggregator uses for the native asset.
	NativeMint = "So11111111111111111111111111111111111111112"
	// USDCMint is the USD Coin mint on mainnet.
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

var ErrAmountOverflow = errors.New("amount does not fit in 64 bits")

var assetAliases = map[string]string{
	"SOL":  NativeMint,
	"WSOL": NativeMint,
	"USDC": USDCMint,
}

// ResolveAsset maps a ticker alias to its mint. Anything else is returned unchanged
// so callers can validate it as a mint address.
func ResolveAsset(asset string) string {
	if mint, ok := assetAliases[strings.ToUpper(strings.TrimSpace(asset))]; ok {
		return mint
	}
	return strings.TrimSpace(asset)
}

// LamportsToSOL converts lamports to SOL without rounding.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-SOLDecimals)
}

// SOLToLamports converts SOL to lamports, truncating anything below one lamport.
func SOLToLamports(sol decimal.Decimal) (uint64, error) {
	return ToBaseUnits(sol, SOLDecimals)
}

// ToBaseUnits converts a display amount into the smallest units of an asset with the
// given decimals, truncating the remainder.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	units := amount.Shift(int32(decimals)).Truncate(0)
	if units.IsNegative() {
		return 0, errors.New("amount is negative")
	}
	if !units.BigInt().IsUint64() {
		return 0, ErrAmountOverflow
	}
	return units.BigInt().Uint64(), nil
}

// FormatSOL renders a SOL amount with DisplayDecimals fractional digits.
func FormatSOL(sol decimal.Decimal) string {
	return sol.StringFixed(DisplayDecimals)
}

// FormatLamports renders lamports as a display SOL amount.
func FormatLamports(lamports uint64) string {
	return FormatSOL(LamportsToSOL(lamports))
}
