package tss

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

var (
	// N is the order of the secp256k1 base point.
	N = new(big.Int).Set(secp256k1.S256().Params().N)
	// HalfN is N/2, the upper bound for the x-coordinate of a canonical group key.
	HalfN = new(big.Int).Rsh(N, 1)

	h = deriveSecondGenerator("mpc-oracle/pedersen/H")
)

// Scalar is an integer modulo the curve order.
type Scalar = secp256k1.ModNScalar

// Point is a curve point in Jacobian coordinates. The zero value is the point at infinity.
type Point = secp256k1.JacobianPoint

// RandomScalar returns a uniformly random non-zero scalar.
func RandomScalar() (*Scalar, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate random scalar")
	}
	k := new(Scalar).Set(&priv.Key)
	priv.Zero()
	return k, nil
}

// ScalarFromBig reduces v modulo N.
func ScalarFromBig(v *big.Int) *Scalar {
	reduced := new(big.Int).Mod(v, N)
	var buf [32]byte
	reduced.FillBytes(buf[:])
	k := new(Scalar)
	k.SetBytes(&buf)
	return k
}

// ScalarToBig returns k as a big integer in [0, N).
func ScalarToBig(k *Scalar) *big.Int {
	b := k.Bytes()
	return new(big.Int).SetBytes(b[:])
}

// ScalarFromHex parses a hex string with or without the 0x prefix. Values are reduced modulo N.
func ScalarFromHex(s string) (*Scalar, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, errors.New("empty scalar hex")
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, errors.Errorf("invalid scalar hex: %q", s)
	}
	return ScalarFromBig(v), nil
}

// ScalarToHex encodes k as 0x-prefixed, zero padded hex.
func ScalarToHex(k *Scalar) string {
	b := k.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// AddScalars returns a + b mod N.
func AddScalars(a, b *Scalar) *Scalar {
	return new(Scalar).Add2(a, b)
}

// SubScalars returns a - b mod N.
func SubScalars(a, b *Scalar) *Scalar {
	negB := new(Scalar).NegateVal(b)
	return new(Scalar).Add2(a, negB)
}

// MulScalars returns a * b mod N.
func MulScalars(a, b *Scalar) *Scalar {
	return new(Scalar).Mul2(a, b)
}

// BaseMul returns k·G.
func BaseMul(k *Scalar) *Point {
	var p Point
	secp256k1.ScalarBaseMultNonConst(k, &p)
	return &p
}

// ScalarMul returns k·P.
func ScalarMul(k *Scalar, p *Point) *Point {
	var r Point
	secp256k1.ScalarMultNonConst(k, p, &r)
	return &r
}

// AddPoints returns P + Q.
func AddPoints(p, q *Point) *Point {
	var r Point
	secp256k1.AddNonConst(p, q, &r)
	return &r
}

// H returns the second generator used by Pedersen commitments. Its discrete log with respect to G is unknown.
func H() *Point {
	var p Point
	p.Set(&h)
	return &p
}

// IsInfinity reports whether p is the point at infinity.
func IsInfinity(p *Point) bool {
	z := p.Z
	z.Normalize()
	return z.IsZero()
}

// PointsEqual compares two points in affine form.
func PointsEqual(p, q *Point) bool {
	if IsInfinity(p) || IsInfinity(q) {
		return IsInfinity(p) && IsInfinity(q)
	}
	a, b := *p, *q
	a.ToAffine()
	b.ToAffine()
	return a.X.Equals(&b.X) && a.Y.Equals(&b.Y)
}

// ToPublicKey converts p to an affine public key.
func ToPublicKey(p *Point) (*btcec.PublicKey, error) {
	if IsInfinity(p) {
		return nil, errors.New("point at infinity has no public key")
	}
	a := *p
	a.ToAffine()
	return btcec.NewPublicKey(&a.X, &a.Y), nil
}

// PointToHex encodes p in compressed SEC1 form.
func PointToHex(p *Point) (string, error) {
	pub, err := ToPublicKey(p)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub.SerializeCompressed()), nil
}

// PointFromHex parses a compressed or uncompressed SEC1 encoded point.
func PointFromHex(s string) (*Point, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid point hex")
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse secp256k1 point")
	}
	var p Point
	pub.AsJacobian(&p)
	return &p, nil
}

// PointsToHex encodes a vector of points.
func PointsToHex(points []Point) ([]string, error) {
	out := make([]string, len(points))
	for i := range points {
		enc, err := PointToHex(&points[i])
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		out[i] = enc
	}
	return out, nil
}

// PointsFromHex decodes a vector of points.
func PointsFromHex(encoded []string) ([]Point, error) {
	out := make([]Point, len(encoded))
	for i, s := range encoded {
		p, err := PointFromHex(s)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		out[i] = *p
	}
	return out, nil
}

// AffineX returns the affine x-coordinate of p.
func AffineX(p *Point) *big.Int {
	a := *p
	a.ToAffine()
	x := a.X.Bytes()
	return new(big.Int).SetBytes(x[:])
}

// IsCanonical reports whether the x-coordinate of p does not exceed N/2.
func IsCanonical(p *Point) bool {
	if IsInfinity(p) {
		return false
	}
	return AffineX(p).Cmp(HalfN) <= 0
}

// deriveSecondGenerator hashes seed||counter to an x-coordinate until it lands on the curve.
func deriveSecondGenerator(seed string) Point {
	var ctr [4]byte
	for i := uint32(0); ; i++ {
		binary.BigEndian.PutUint32(ctr[:], i)
		digest := sha256.Sum256(append([]byte(seed), ctr[:]...))

		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(digest[:]); overflow {
			continue
		}
		if !secp256k1.DecompressY(&x, false, &y) {
			continue
		}
		var p Point
		p.X.Set(&x)
		p.Y.Set(&y)
		p.Z.SetInt(1)
		return p
	}
}
