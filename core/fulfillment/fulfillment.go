// Package fulfillment turns matched orders into prepared, about-to-sign
// chain payloads, enforcing dust limits, fee reservation, and rate limits
// per spec.md §4.7.
package fulfillment

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/types"
)

// DustLimitRDG is the minimum RDG output amount in base units.
const DustLimitRDG = 1000

// MinFeeRDGSats is the minimum RDG fee to a seed fee-address.
const MinFeeRDGSats = 1000

// ZeroFeeStakeMinTotal is the minimum total output, in RDG base units, that
// qualifies for the zero-fee stake condition.
const ZeroFeeStakeMinTotal = 1_0000_0000 // 1.0 RDG at 8 decimals

// PerChainDustLimit gives the minimum accepted output for external chains.
var PerChainDustLimit = map[types.Currency]uint64{
	types.Bitcoin: 1000,
	types.Ethereum: 1,
	types.Monero:  1,
	types.Solana:  1,
}

// PartySigningValidation describes what signers must verify before
// affixing a proof to the prepared payload.
type PartySigningValidation struct {
	SigningHash    types.Hash
	ExpectedOutput types.Amount
	Destination    types.Address
}

// PreparedPayload bundles the chain-specific payload bytes with the
// validation record signers check against.
type PreparedPayload struct {
	Chain      types.Currency
	Payload    []byte
	FeeBase    uint64
	Validation PartySigningValidation
}

// RateLimiter bounds the number of fulfillments processed per tick.
type RateLimiter struct {
	maxPerTick int
	count      int
}

// NewRateLimiter constructs a limiter allowing maxPerTick fulfillments.
func NewRateLimiter(maxPerTick int) *RateLimiter { return &RateLimiter{maxPerTick: maxPerTick} }

// Reset clears the per-tick counter; called once at the start of each
// driver tick.
func (r *RateLimiter) Reset() { r.count = 0 }

// Allow reports whether another fulfillment may proceed this tick.
func (r *RateLimiter) Allow() bool {
	if r.count >= r.maxPerTick {
		return false
	}
	r.count++
	return true
}

// CheckDust returns an error if order.ExpectedAmount is below the dust
// limit for its currency.
func CheckDust(order types.Order) error {
	var limit uint64
	if order.ToCurrency == types.Redgold {
		limit = DustLimitRDG
	} else {
		limit = PerChainDustLimit[order.ToCurrency]
	}
	if order.ExpectedAmount.Int().Uint64() < limit {
		return partyerr.New(partyerr.KindArithmetic, "BelowDust").
			WithDetail("currency", order.ToCurrency.String()).
			WithDetail("amount", order.ExpectedAmount.Int().String()).
			WithDetail("limit", limit)
	}
	return nil
}

// QualifiesForZeroFeeStake evaluates the zero-fee stake condition named in
// spec.md §4.7: total output >= 1.0 RDG AND fewer than 5 outputs AND
// time-since-last-parent exceeds the configured minimum delta, scaled
// inversely by amount.
func QualifiesForZeroFeeStake(totalOutputBaseUnits uint64, numOutputs int, timeSinceLastParent time.Duration, minDelta time.Duration) bool {
	if totalOutputBaseUnits < ZeroFeeStakeMinTotal {
		return false
	}
	if numOutputs >= 5 {
		return false
	}
	scaled := scaleDeltaInverselyByAmount(minDelta, totalOutputBaseUnits)
	return timeSinceLastParent > scaled
}

func scaleDeltaInverselyByAmount(base time.Duration, amount uint64) time.Duration {
	if amount == 0 {
		return base
	}
	factor := float64(ZeroFeeStakeMinTotal) / float64(amount)
	if factor > 1 {
		factor = 1
	}
	return time.Duration(float64(base) * factor)
}

// PrepareRDGFee computes the fee to attach to an outgoing RDG transaction:
// either the fixed minimum fee, or zero if the stake condition is met.
func PrepareRDGFee(totalOutputBaseUnits uint64, numOutputs int, timeSinceLastParent, minDelta time.Duration) uint64 {
	if QualifiesForZeroFeeStake(totalOutputBaseUnits, numOutputs, timeSinceLastParent, minDelta) {
		return 0
	}
	return MinFeeRDGSats
}

// Engine orchestrates fulfillment preparation against a rate limiter.
type Engine struct {
	limiter *RateLimiter
	log     *logrus.Entry
}

// NewEngine constructs a fulfillment Engine.
func NewEngine(maxPerTick int) *Engine {
	return &Engine{limiter: NewRateLimiter(maxPerTick), log: logrus.WithField("component", "fulfillment")}
}

// ResetTick must be called once per driver tick before processing orders.
func (e *Engine) ResetTick() { e.limiter.Reset() }

// Admit validates dust and rate limits for order, returning an error if
// either is violated.
func (e *Engine) Admit(order types.Order) error {
	if err := CheckDust(order); err != nil {
		e.log.WithError(err).Warn("order rejected below dust")
		return err
	}
	if !e.limiter.Allow() {
		return partyerr.New(partyerr.KindConsensus, "fulfillment rate limit exceeded this tick")
	}
	return nil
}
