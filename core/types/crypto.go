package types

import "golang.org/x/crypto/sha3"

// Hash is a SHA-3-256 digest, used for transaction identity and the
// canonical-encoding hash discipline described for the internal ledger.
type Hash [32]byte

// HashBytes returns the SHA-3-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(sha3.Sum256(data))
}

func (h Hash) Hex() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(h)*2)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// PublicKey is raw compressed elliptic-curve public key material. The curve
// in use (secp256k1 for threshold signing, or chain-native curves for
// external-chain verification) is implied by context, matching the source's
// untyped byte-vector representation.
type PublicKey struct {
	Bytes []byte
}

// Signature is a raw signature over a Hash.
type Signature struct {
	Bytes []byte
}

// Proof binds a PublicKey and a Signature over a hash. Multiple Proofs can be
// combined to derive a threshold Address (see core/signing).
type Proof struct {
	PublicKey PublicKey
	Signature Signature
	SignedHash Hash
}
