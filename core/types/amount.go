package types

import (
	"fmt"
	"math/big"

	"github.com/redbridge-network/partychain/core/partyerr"
)

// Amount is a (Currency, integer base units) pair. BaseUnits holds the value
// for currencies that fit in 64 bits; Big, when non-nil, is authoritative and
// used for chains whose values can exceed uint64 (Ethereum wei totals near
// the top of the uint64 range, in particular).
type Amount struct {
	Currency  Currency
	BaseUnits uint64
	Big       *big.Int
}

// NewAmount constructs an Amount from a uint64 base-unit value.
func NewAmount(c Currency, baseUnits uint64) Amount {
	return Amount{Currency: c, BaseUnits: baseUnits}
}

// NewBigAmount constructs an Amount backed by an arbitrary-precision value.
func NewBigAmount(c Currency, v *big.Int) Amount {
	return Amount{Currency: c, Big: v}
}

// Int returns the amount as a *big.Int regardless of which field is set.
func (a Amount) Int() *big.Int {
	if a.Big != nil {
		return a.Big
	}
	return new(big.Int).SetUint64(a.BaseUnits)
}

// IsZero reports whether the amount is zero base units.
func (a Amount) IsZero() bool { return a.Int().Sign() == 0 }

// Add returns a + b. Arithmetic is defined only within a single currency;
// mismatched currencies return an Arithmetic-kind error.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, partyerr.New(partyerr.KindArithmetic, "currency mismatch in Add").
			WithDetail("a", a.Currency.String()).WithDetail("b", b.Currency.String())
	}
	sum := new(big.Int).Add(a.Int(), b.Int())
	return collapse(a.Currency, sum), nil
}

// Sub returns a - b. Returns an Arithmetic-kind error on currency mismatch or
// underflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, partyerr.New(partyerr.KindArithmetic, "currency mismatch in Sub").
			WithDetail("a", a.Currency.String()).WithDetail("b", b.Currency.String())
	}
	diff := new(big.Int).Sub(a.Int(), b.Int())
	if diff.Sign() < 0 {
		return Amount{}, partyerr.New(partyerr.KindArithmetic, "insufficient balance").
			WithDetail("a", a.Int().String()).WithDetail("b", b.Int().String())
	}
	return collapse(a.Currency, diff), nil
}

// Cmp compares a and b, which must share a currency.
func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, partyerr.New(partyerr.KindArithmetic, "currency mismatch in Cmp")
	}
	return a.Int().Cmp(b.Int()), nil
}

func collapse(c Currency, v *big.Int) Amount {
	if v.IsUint64() {
		return Amount{Currency: c, BaseUnits: v.Uint64()}
	}
	return Amount{Currency: c, Big: v}
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Int().String(), a.Currency.String())
}
