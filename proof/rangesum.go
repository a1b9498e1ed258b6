package proof

import (
	"fmt"
	"math/big"

	"github.com/amarvote/guardian-engine/group"
)

// BuildRangeSum proves that the homomorphic sum of a contest's selection
// ciphertexts (including placeholders) — (padSum, dataSum) — encrypts
// exactly votesAllowed under K, given the sum of the per-selection
// nonces rSum.
func BuildRangeSum(p group.Params, qbar group.Scalar, k, padSum, dataSum group.Element, votesAllowed int, rSum group.Scalar) (ChaumPedersenProof, error) {
	h2, err := dataOverGN(p, dataSum, votesAllowed)
	if err != nil {
		return ChaumPedersenProof{}, fmt.Errorf("proof: range-sum: %w", err)
	}
	return BuildChaumPedersen(p, qbar, k, padSum, h2, rSum)
}

// VerifyRangeSum checks the range-sum proof for the given contest
// aggregate and votesAllowed.
func VerifyRangeSum(p group.Params, qbar group.Scalar, k, padSum, dataSum group.Element, votesAllowed int, pr ChaumPedersenProof) error {
	h2, err := dataOverGN(p, dataSum, votesAllowed)
	if err != nil {
		return fmt.Errorf("proof: range-sum: %w", err)
	}
	return pr.Verify(p, qbar, k, padSum, h2)
}

// dataOverGN computes dataSum * g^{-n}.
func dataOverGN(p group.Params, dataSum group.Element, n int) (group.Element, error) {
	gn := group.GPow(p, group.NewScalar(p, big.NewInt(int64(n))))
	gnInv, err := group.InvP(p, gn)
	if err != nil {
		return group.Element{}, err
	}
	return group.MulP(p, dataSum, gnInv), nil
}
