package types

import (
	"encoding/json"
	"time"
)

// UtxoId identifies a single unspent output on the internal ledger.
type UtxoId struct {
	TransactionHash Hash
	OutputIndex     uint32
}

// TxInput is one spent input with its authorizing proof.
type TxInput struct {
	Utxo  UtxoId
	Proof Proof
}

// TxOutput is one created output.
type TxOutput struct {
	Address Address
	Amount  Amount
}

// TxOptions carries optional transaction features: a proof-of-work nonce and
// an optional contract reference. The contract executor itself is out of
// scope; only the reference survives here.
type TxOptions struct {
	PowNonce       *uint64
	ContractRef    []byte
	Memo           string
}

// TxMetadata is the struct metadata block stamped onto every transaction.
type TxMetadata struct {
	Version       uint32
	Time          time.Time
	Hash          Hash
	SignableHash  Hash
}

// Transaction is the internal ledger transaction: ordered inputs and
// outputs with per-input proofs, options, and metadata. Hashes are
// SHA-3-256 over the canonical byte encoding with the hash field cleared,
// per the source's hashing discipline (teacher's transaction_hash.go used
// plain sha256 over JSON; this is replaced to match the specified
// SHA-3-256-over-canonical-encoding rule exactly).
type Transaction struct {
	Inputs   []TxInput
	Outputs  []TxOutput
	Options  TxOptions
	Metadata TxMetadata
}

// canonicalEncoding serializes the transaction deterministically with the
// hash field cleared, matching "SHA-3-256 over the canonical byte encoding
// with the hash field cleared".
func (t Transaction) canonicalEncoding() []byte {
	clone := t
	clone.Metadata.Hash = Hash{}
	// struct field ordering in Go is stable, and json.Marshal walks struct
	// fields in declaration order, giving a deterministic encoding.
	b, _ := json.Marshal(clone)
	return b
}

// ComputeHash returns the SHA-3-256 hash of the canonical encoding.
func (t Transaction) ComputeHash() Hash {
	return HashBytes(t.canonicalEncoding())
}

// ComputeSignableHash returns the hash inputs sign over: the canonical
// encoding with both the hash and the per-input proofs cleared, since a
// proof cannot certify itself.
func (t Transaction) ComputeSignableHash() Hash {
	clone := t
	clone.Metadata.Hash = Hash{}
	clone.Metadata.SignableHash = Hash{}
	for i := range clone.Inputs {
		clone.Inputs[i].Proof = Proof{}
	}
	b, _ := json.Marshal(clone)
	return HashBytes(b)
}

// TotalOutput sums outputs of the given currency.
func (t Transaction) TotalOutput(c Currency) Amount {
	sum := NewAmount(c, 0)
	for _, o := range t.Outputs {
		if o.Amount.Currency == c {
			if s, err := sum.Add(o.Amount); err == nil {
				sum = s
			}
		}
	}
	return sum
}
