package tss

import (
	"github.com/pkg/errors"
)

// Polynomial is f(x) = c0 + c1·x + ... + cd·x^d over the scalar field.
type Polynomial struct {
	coeffs []Scalar
}

// NewPolynomial copies coeffs, lowest degree first.
func NewPolynomial(coeffs []Scalar) (*Polynomial, error) {
	if len(coeffs) == 0 {
		return nil, errors.New("polynomial needs at least one coefficient")
	}
	cp := make([]Scalar, len(coeffs))
	copy(cp, coeffs)
	return &Polynomial{coeffs: cp}, nil
}

// NewRandomPolynomial returns a polynomial of the given degree with random coefficients.
func NewRandomPolynomial(degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.Errorf("invalid polynomial degree %d", degree)
	}
	coeffs := make([]Scalar, degree+1)
	for i := range coeffs {
		k, err := RandomScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = *k
	}
	return &Polynomial{coeffs: coeffs}, nil
}

// Degree returns the degree of p.
func (p *Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

// Coefficient returns the i-th coefficient.
func (p *Polynomial) Coefficient(i int) *Scalar {
	return new(Scalar).Set(&p.coeffs[i])
}

// Evaluate returns f(x) using Horner's rule.
func (p *Polynomial) Evaluate(x *Scalar) *Scalar {
	result := new(Scalar).Set(&p.coeffs[len(p.coeffs)-1])
	for i := len(p.coeffs) - 2; i >= 0; i-- {
		result.Mul(x).Add(&p.coeffs[i])
	}
	return result
}

// CoefPubKeys returns ck·G for every coefficient.
func (p *Polynomial) CoefPubKeys() []Point {
	out := make([]Point, len(p.coeffs))
	for i := range p.coeffs {
		out[i] = *BaseMul(&p.coeffs[i])
	}
	return out
}

// Zero overwrites the coefficients.
func (p *Polynomial) Zero() {
	for i := range p.coeffs {
		p.coeffs[i].Zero()
	}
}

// PedersenCommit returns Ck = fk·G + hk·H for two polynomials of equal degree.
func PedersenCommit(f, hp *Polynomial) ([]Point, error) {
	if f.Degree() != hp.Degree() {
		return nil, errors.Errorf("degree mismatch: %d != %d", f.Degree(), hp.Degree())
	}
	hGen := H()
	out := make([]Point, len(f.coeffs))
	for i := range f.coeffs {
		out[i] = *AddPoints(BaseMul(&f.coeffs[i]), ScalarMul(&hp.coeffs[i], hGen))
	}
	return out, nil
}

// EvaluateCommitments returns Σ Ck·x^k.
func EvaluateCommitments(commitments []Point, x *Scalar) *Point {
	var acc Point
	power := new(Scalar).SetInt(1)
	for i := range commitments {
		acc = *AddPoints(&acc, ScalarMul(power, &commitments[i]))
		power.Mul(x)
	}
	return &acc
}

// VerifyPedersenShare checks f(x)·G + h(x)·H == Σ Ck·x^k.
func VerifyPedersenShare(x, fx, hx *Scalar, commitments []Point) bool {
	if len(commitments) == 0 {
		return false
	}
	lhs := AddPoints(BaseMul(fx), ScalarMul(hx, H()))
	return PointsEqual(lhs, EvaluateCommitments(commitments, x))
}

// VerifyFeldmanShare checks f(x)·G == Σ Ak·x^k.
func VerifyFeldmanShare(x, fx *Scalar, coefPubKeys []Point) bool {
	if len(coefPubKeys) == 0 {
		return false
	}
	return PointsEqual(BaseMul(fx), EvaluateCommitments(coefPubKeys, x))
}
