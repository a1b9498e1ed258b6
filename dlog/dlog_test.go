package dlog

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/amarvote/guardian-engine/config"
	"github.com/amarvote/guardian-engine/group"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig(1, 1)
	cfg.DlogCeiling = 2000
	cfg.DlogCacheSize = 64
	cfg.DlogBatchSize = 32
	return cfg
}

func TestSolveFindsSmallExponents(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	table, err := New(p, testConfig())
	c.Assert(err, qt.IsNil)

	for _, m := range []uint64{0, 1, 5, 100, 999} {
		h := group.GPow(p, group.NewScalar(p, new(big.Int).SetUint64(m)))
		got, err := table.Solve(p, h)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, m)
	}
}

func TestSolveOutOfRangeFails(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	cfg := testConfig()
	cfg.DlogCeiling = 100
	table, err := New(p, cfg)
	c.Assert(err, qt.IsNil)

	h := group.GPow(p, group.NewScalar(p, big.NewInt(500)))
	_, err = table.Solve(p, h)
	c.Assert(err, qt.Equals, ErrExponentTooLarge)
}

func TestSolveCancellation(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	table, err := New(p, testConfig())
	c.Assert(err, qt.IsNil)

	calls := 0
	table.SetCancelFunc(func() bool {
		calls++
		return true
	})

	h := group.GPow(p, group.NewScalar(p, big.NewInt(1500)))
	_, err = table.Solve(p, h)
	c.Assert(err, qt.Equals, ErrCancelled)
	c.Assert(calls > 0, qt.IsTrue)
}

func TestSolveMonotonicCursorReused(t *testing.T) {
	c := qt.New(t)
	p := group.TestParams
	table, err := New(p, testConfig())
	c.Assert(err, qt.IsNil)

	h1 := group.GPow(p, group.NewScalar(p, big.NewInt(300)))
	_, err = table.Solve(p, h1)
	c.Assert(err, qt.IsNil)
	c.Assert(table.MaxComputed() >= 300, qt.IsTrue)

	// A smaller target already passed by the cursor is still solved, even
	// though the size-64 cache has evicted it by now.
	h0 := group.GPow(p, group.NewScalar(p, big.NewInt(50)))
	got, err := table.Solve(p, h0)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, uint64(50))
}
