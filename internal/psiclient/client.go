// Package psiclient implements C6, the two PSI client roles (Initiator and
// Joiner). The roles never contact each other directly: each computes the
// payloads it exchanges through the server's HTTP surface (this package
// makes no HTTP calls itself). They are grounded on the reference client's
// PSIClient/InitiatorClient/JoinerClient split.
package psiclient

import (
	"math/big"

	"github.com/auroradata-ai/geofence-psi/internal/psigroup"
)

// Role holds the per-session blinding exponent shared by both client roles.
type Role struct {
	UserID         string
	blindingFactor *big.Int
}

// NewRole draws a fresh, per-session blinding exponent for userID.
func NewRole(userID string) (*Role, error) {
	k, err := psigroup.RandomExponent()
	if err != nil {
		return nil, err
	}
	return &Role{UserID: userID, blindingFactor: k}, nil
}

// hashAndBlind computes H(item)^k mod p.
func (r *Role) hashAndBlind(item string) *big.Int {
	return psigroup.Blind(psigroup.HashToGroup([]byte(item)), r.blindingFactor)
}

// blind computes value^k mod p for a value already in the group.
func (r *Role) blind(value *big.Int) *big.Int {
	return psigroup.Blind(value, r.blindingFactor)
}

// Initiator is the PSI initiator (role A, §4.3). It holds X and a secret
// exponent a.
type Initiator struct {
	Role
	Items []string
}

// NewInitiator constructs an Initiator over items, ready to produce its
// step-1 blinded values.
func NewInitiator(userID string, items []string) (*Initiator, error) {
	role, err := NewRole(userID)
	if err != nil {
		return nil, err
	}
	return &Initiator{Role: *role, Items: items}, nil
}

// BlindedValues returns H(x_i)^a for every item, in input order — the
// payload for POST /psi/init (step 1).
func (in *Initiator) BlindedValues() []*big.Int {
	out := make([]*big.Int, len(in.Items))
	for i, x := range in.Items {
		out[i] = in.hashAndBlind(x)
	}
	return out
}

// ComputeIntersection implements step 3: given a single joiner's response
// sequence (the first n = len(responseValues)-len(Items) entries are
// H(y_j)^b, the trailing m entries are H(x_i)^{ab} in the initiator's
// original order), it returns the subset of Items present in the joiner's
// set.
func (in *Initiator) ComputeIntersection(responseValues []*big.Int) []string {
	m := len(in.Items)
	n := len(responseValues) - m
	if n < 0 {
		n = 0
	}
	joinerY := responseValues[:n]
	doubleBlindedX := responseValues[n:]

	aliceYY := make([]*big.Int, len(joinerY))
	for i, y := range joinerY {
		aliceYY[i] = in.blind(y)
	}

	var intersection []string
	for i, x := range in.Items {
		if i >= len(doubleBlindedX) {
			break
		}
		if containsElement(aliceYY, doubleBlindedX[i]) {
			intersection = append(intersection, x)
		}
	}
	return intersection
}

func containsElement(set []*big.Int, v *big.Int) bool {
	for _, e := range set {
		if e.Cmp(v) == 0 {
			return true
		}
	}
	return false
}

// Joiner is the PSI joiner (role B, §4.3). It holds Y and a secret
// exponent b.
type Joiner struct {
	Role
	Items []string
}

// NewJoiner constructs a Joiner over items.
func NewJoiner(userID string, items []string) (*Joiner, error) {
	role, err := NewRole(userID)
	if err != nil {
		return nil, err
	}
	return &Joiner{Role: *role, Items: items}, nil
}

// RespondTo implements step 2: given the initiator's blinded values
// H(x_i)^a, returns the concatenation blinded_y || double_blinded_x to
// submit as the join response.
func (jo *Joiner) RespondTo(initiatorValues []*big.Int) []*big.Int {
	blindedY := make([]*big.Int, len(jo.Items))
	for i, y := range jo.Items {
		blindedY[i] = jo.hashAndBlind(y)
	}

	doubleBlindedX := make([]*big.Int, len(initiatorValues))
	for i, x := range initiatorValues {
		doubleBlindedX[i] = jo.blind(x)
	}

	return append(blindedY, doubleBlindedX...)
}
