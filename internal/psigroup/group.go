// Package psigroup implements the fixed RFC 3526 Group 14 (2048-bit MODP)
// safe-prime group the PSI protocol runs over: hash-to-group and blinding
// via modular exponentiation, grounded the way Tomsons-go-srp's srp.go
// models its <g, N> prime-field arithmetic with math/big.Int.Exp.
package psigroup

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
)

// P is the RFC 3526 Group 14 2048-bit MODP safe prime, the same literal
// the original client embeds for its PSI blinding group.
var P = mustBigIntHex("" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF")

var one = big.NewInt(1)
var two = big.NewInt(2)

// qOrder is (P-1)/2, the order of the prime-order subgroup. The exponent
// space for blinding factors is [1, qOrder - 1] (§4.2).
var qOrder = new(big.Int).Rsh(new(big.Int).Sub(P, one), 1)

// InRange reports whether v lies in [1, p-1], the legal range for any
// stored PSI group element (§3 invariant).
func InRange(v *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(P) < 0
}

// HashToGroup hashes s with SHA-256 and interprets the digest, big-endian,
// as an element of Z_p. This is the "simple interpretation" the design
// notes (§9) flag as not enforcing prime-order-subgroup membership; see
// Square, which implements the (a) remediation those notes describe.
func HashToGroup(s []byte) *big.Int {
	digest := sha256.Sum256(s)
	h := new(big.Int).SetBytes(digest[:])
	return h.Mod(h, P)
}

// Square reduces a group element into the prime-order subgroup Q ⊂ Z_p^*
// (order q = (p-1)/2) by squaring it, per the §9 remediation (a). Callers
// that want the stronger membership guarantee should apply this to the
// output of HashToGroup consistently on both the initiator and joiner
// side — mixing the two is a breaking protocol change.
func Square(v *big.Int) *big.Int {
	return Blind(v, two)
}

// Blind computes value^k mod p.
func Blind(value, k *big.Int) *big.Int {
	return new(big.Int).Exp(value, k, P)
}

// RandomExponent draws a uniformly random blinding exponent in
// [1, (p-1)/2 - 1].
func RandomExponent() (*big.Int, error) {
	max := new(big.Int).Sub(qOrder, one) // exclusive upper bound for [1, qOrder-1]
	if max.Sign() <= 0 {
		return nil, errors.New("psigroup: degenerate exponent space")
	}
	k, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, err
	}
	return k.Add(k, one), nil
}

func mustBigIntHex(hex string) *big.Int {
	n, ok := new(big.Int).SetString(hex, 16)
	if !ok {
		panic("psigroup: invalid fixed group parameter")
	}
	return n
}
