// Package curvegroup is an alternate PSIGroup backend over edwards25519,
// implementing the §9 design-note remediation (b): swap the safe-prime
// Z_p^* group for a prime-order curve group so every group element is
// automatically a member of the working subgroup, closing the
// subgroup-membership side channel that psigroup.HashToGroup's "simple
// interpretation" leaves open without psigroup.Square.
//
// It is not wired into the default protocol path (internal/psi uses
// psigroup), but it is a complete, usable Group on its own and exists to
// be picked up by a deployment that wants the stronger guarantee without
// the Square(HashToGroup(x)) convention.
package curvegroup

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Element is a blinded (or unblinded) group element: a point on
// edwards25519.
type Element struct {
	point *edwards25519.Point
}

// Bytes returns the 32-byte canonical encoding of the element.
func (e Element) Bytes() []byte { return e.point.Bytes() }

// Equal reports whether two elements encode the same point.
func (e Element) Equal(other Element) bool {
	return e.point.Equal(other.point) == 1
}

// String returns a hex representation, for logs and test failure messages.
func (e Element) String() string { return fmt.Sprintf("%x", e.Bytes()) }

// ElementFromBytes decodes a 32-byte canonical point encoding.
func ElementFromBytes(b []byte) (Element, error) {
	if len(b) != 32 {
		return Element{}, errors.New("curvegroup: invalid element length")
	}
	p := new(edwards25519.Point)
	if _, err := p.SetBytes(b); err != nil {
		return Element{}, fmt.Errorf("curvegroup: decode point: %w", err)
	}
	return Element{point: p}, nil
}

// HashToGroup maps s onto the curve by hashing to a scalar and multiplying
// the base point, landing unconditionally in the prime-order subgroup —
// no equivalent of psigroup.Square is needed here.
func HashToGroup(s []byte) Element {
	h := sha256.Sum256(s)
	scalar, err := new(edwards25519.Scalar).SetCanonicalBytes(h[:])
	if err != nil {
		scalar, _ = new(edwards25519.Scalar).SetUniformBytes(append(h[:], h[:]...)[:64])
	}
	return Element{point: new(edwards25519.Point).ScalarBaseMult(scalar)}
}

// Exponent is a blinding factor: a scalar in edwards25519's field.
type Exponent struct {
	scalar *edwards25519.Scalar
}

// RandomExponent draws a uniformly random blinding scalar.
func RandomExponent() (Exponent, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return Exponent{}, fmt.Errorf("curvegroup: read randomness: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(buf)
	if err != nil {
		return Exponent{}, fmt.Errorf("curvegroup: derive scalar: %w", err)
	}
	return Exponent{scalar: s}, nil
}

// Blind computes k·e, commutative in k across repeated application by
// different parties (the initiator's and joiner's blinding factors
// compose regardless of order), exactly as the safe-prime group's
// exponentiation does.
func Blind(e Element, k Exponent) Element {
	return Element{point: new(edwards25519.Point).ScalarMult(k.scalar, e.point)}
}

// Unblind removes a blinding factor k from e, computing k^-1·e. The PSI
// protocol itself never needs this (both sides only ever add blinding
// layers), but it is kept because it is what distinguishes a group with
// invertible exponents from one where unblinding requires the order of
// the group — useful for protocol variants and for tests that check
// Blind/Unblind round-trip.
func Unblind(e Element, k Exponent) Element {
	inv := new(edwards25519.Scalar).Invert(k.scalar)
	return Element{point: new(edwards25519.Point).ScalarMult(inv, e.point)}
}
