package session

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolarena/core"
)

func slot(i int) *int { return &i }

func TestDistribute_Winner(t *testing.T) {
	d, err := Distribute([]string{"a", "b", "c", "d"}, 1000, 250, slot(2), nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyWinner, d.Policy)
	assert.Equal(t, uint64(4000), d.Pool)
	assert.Equal(t, uint64(100), d.Fee)
	assert.Equal(t, []Leg{{To: "c", Amount: 3900}, {To: core.TreasuryAddress, Amount: 100}}, d.Legs)
	assert.Equal(t, d.Pool, d.Total())
}

func TestDistribute_LoserRemainderToTreasury(t *testing.T) {
	d, err := Distribute([]string{"a", "b", "c", "d"}, 1, 500, nil, slot(0))
	require.NoError(t, err)
	assert.Equal(t, PolicyLoser, d.Policy)
	assert.Equal(t, []Leg{
		{To: "b", Amount: 1}, {To: "c", Amount: 1}, {To: "d", Amount: 1},
		{To: core.TreasuryAddress, Amount: 1},
	}, d.Legs)
	assert.Equal(t, d.Pool, d.Total())
	assert.Zero(t, d.Fee, "loser split charges no fee")
}

func TestDistribute_Refund(t *testing.T) {
	d, err := Distribute([]string{"a", "b", "c"}, 7, 9999, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, PolicyRefund, d.Policy)
	assert.Equal(t, uint64(21), d.Total())
	for _, l := range d.Legs {
		assert.Equal(t, uint64(7), l.Amount)
	}
}

func TestDistribute_SumsMatchPool(t *testing.T) {
	for _, players := range [][]string{{"a", "b"}, {"a", "b", "c", "d"}} {
		for _, amount := range []uint64{0, 1, 3, 999, 1 << 40} {
			for _, fee := range []uint16{0, 1, 333, core.FeeMax} {
				for _, tc := range []struct{ w, l *int }{{slot(1), nil}, {nil, slot(0)}, {nil, nil}} {
					d, err := Distribute(players, amount, fee, tc.w, tc.l)
					require.NoError(t, err)
					assert.Equal(t, d.Pool, d.Total(), "players=%d amount=%d fee=%d", len(players), amount, fee)
				}
			}
		}
	}
}

func TestDistribute_Errors(t *testing.T) {
	_, err := Distribute([]string{"a", "b", "c"}, 10, 0, nil, slot(0))
	require.ErrorIs(t, err, core.ErrInvalidPlayerCount)

	_, err = Distribute([]string{"a", "b"}, 10, 0, slot(2), nil)
	require.ErrorIs(t, err, core.ErrInvalidSlot)

	_, err = Distribute([]string{"a", "b"}, 10, core.FeeMax+1, slot(0), nil)
	require.ErrorIs(t, err, core.ErrInvalidFee)

	_, err = Distribute([]string{"a", "b"}, math.MaxUint64, 0, slot(0), nil)
	require.Error(t, err)
}
