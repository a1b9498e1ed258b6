package codec

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/amarvote/guardian-engine/group"
)

func TestScalarRoundTripCBOR(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	s := group.NewScalar(p, big.NewInt(424242))
	wire := FromScalar(s)

	data, err := Encode(wire)
	c.Assert(err, qt.IsNil)

	var decoded Scalar
	c.Assert(Decode(data, &decoded), qt.IsNil)
	back, err := decoded.ToScalar(p)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(s), qt.IsTrue)
}

func TestElementRoundTripCBORRejectsNonSubgroup(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	e := group.GPow(p, group.NewScalar(p, big.NewInt(9)))
	wire := FromElement(e)

	data, err := Encode(wire)
	c.Assert(err, qt.IsNil)
	var decoded Element
	c.Assert(Decode(data, &decoded), qt.IsNil)
	back, err := decoded.ToElement(p)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(e), qt.IsTrue)

	nonSubgroup := Element{v: big.NewInt(2)}
	_, err = nonSubgroup.ToElement(p)
	c.Assert(err, qt.Equals, group.ErrInvalidGroupElement)
}

func TestScalarRoundTripJSON(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	s := group.NewScalar(p, big.NewInt(777))
	wire := FromScalar(s)

	data, err := Encode(wire, EncodingJSON)
	c.Assert(err, qt.IsNil)
	var decoded Scalar
	c.Assert(Decode(data, &decoded, EncodingJSON), qt.IsNil)
	back, err := decoded.ToScalar(p)
	c.Assert(err, qt.IsNil)
	c.Assert(back.Equal(s), qt.IsTrue)
}

func TestEncodeIsDeterministic(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	s := group.NewScalar(p, big.NewInt(13579))
	wire := FromScalar(s)

	d1, err := Encode(wire)
	c.Assert(err, qt.IsNil)
	d2, err := Encode(wire)
	c.Assert(err, qt.IsNil)
	c.Assert(string(d1), qt.Equals, string(d2))
}
