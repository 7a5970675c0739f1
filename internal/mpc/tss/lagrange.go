package tss

import (
	"github.com/pkg/errors"
)

// Share is a polynomial evaluation f(Index) = Value.
type Share struct {
	Index Scalar
	Value Scalar
}

// PointShare is a public evaluation f(Index)·G.
type PointShare struct {
	Index Scalar
	Value Point
}

// LagrangeCoefficient returns Π_{m≠j} (target - xm) / (xj - xm).
func LagrangeCoefficient(indices []Scalar, j int, target *Scalar) (*Scalar, error) {
	if j < 0 || j >= len(indices) {
		return nil, errors.Errorf("index position %d out of range", j)
	}
	num := new(Scalar).SetInt(1)
	den := new(Scalar).SetInt(1)
	for m := range indices {
		if m == j {
			continue
		}
		diff := SubScalars(&indices[j], &indices[m])
		if diff.IsZero() {
			return nil, errors.Errorf("duplicate interpolation index at positions %d and %d", j, m)
		}
		num.Mul(SubScalars(target, &indices[m]))
		den.Mul(diff)
	}
	den.InverseNonConst()
	return num.Mul(den), nil
}

// ReconstructAt interpolates the first t shares and evaluates the result at target.
// Passing the zero scalar as target recovers the constant term.
func ReconstructAt(shares []Share, t int, target *Scalar) (*Scalar, error) {
	if t < 1 {
		return nil, errors.Errorf("invalid threshold %d", t)
	}
	if len(shares) < t {
		return nil, errors.Errorf("need %d shares to reconstruct, have %d", t, len(shares))
	}
	shares = shares[:t]
	indices := make([]Scalar, t)
	for i := range shares {
		indices[i] = shares[i].Index
	}

	result := new(Scalar)
	for j := range shares {
		lambda, err := LagrangeCoefficient(indices, j, target)
		if err != nil {
			return nil, err
		}
		result.Add(lambda.Mul(&shares[j].Value))
	}
	return result, nil
}

// ReconstructPointAt is ReconstructAt in the exponent.
func ReconstructPointAt(shares []PointShare, t int, target *Scalar) (*Point, error) {
	if t < 1 {
		return nil, errors.Errorf("invalid threshold %d", t)
	}
	if len(shares) < t {
		return nil, errors.Errorf("need %d shares to reconstruct, have %d", t, len(shares))
	}
	shares = shares[:t]
	indices := make([]Scalar, t)
	for i := range shares {
		indices[i] = shares[i].Index
	}

	var acc Point
	for j := range shares {
		lambda, err := LagrangeCoefficient(indices, j, target)
		if err != nil {
			return nil, err
		}
		acc = *AddPoints(&acc, ScalarMul(lambda, &shares[j].Value))
	}
	return &acc, nil
}
