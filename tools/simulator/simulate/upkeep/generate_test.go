package upkeep

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

func TestGenerateAllUpkeeps(t *testing.T) {
	plan := config.DefaultSimulationPlan()
	plan.Blocks = config.Blocks{
		Genesis:  128_943_862,
		Duration: 10,
	}
	plan.GenerateUpkeeps = []config.GenerateUpkeepEvent{
		{
			Count:           15,
			ExecuteGas:      100_000,
			Funding:         big.NewInt(1),
			EligibilityFunc: "24x - 3",
			OffsetFunc:      "3x - 4",
			Expected:        config.AllExpected,
		},
		{
			Event:           config.Event{TriggerBlock: 128_943_863},
			Count:           4,
			ExecuteGas:      200_000,
			Funding:         big.NewInt(2),
			EligibilityFunc: "always",
			Expected:        config.NoneExpected,
		},
	}

	generated, err := GenerateAllUpkeeps(plan)

	require.NoError(t, err)
	require.Len(t, generated, 19)

	assert.Equal(t, "upkeep 0.1", generated[0].Name)
	assert.True(t, generated[0].Expected)
	assert.False(t, generated[0].AlwaysEligible)

	last := generated[18]
	assert.Equal(t, "upkeep 1.4", last.Name)
	assert.Equal(t, uint64(128_943_863), last.CreateInBlock)
	assert.Equal(t, uint32(200_000), last.ExecuteGas)
	assert.True(t, last.AlwaysEligible)
	assert.False(t, last.Expected)
}

func TestGenerateAllUpkeeps_RequiresFunding(t *testing.T) {
	plan := config.DefaultSimulationPlan()
	plan.GenerateUpkeeps = []config.GenerateUpkeepEvent{
		{Count: 1, EligibilityFunc: "always"},
	}

	_, err := GenerateAllUpkeeps(plan)

	assert.ErrorIs(t, err, ErrUpkeepGeneration)
}

func TestGenerateEligibles(t *testing.T) {
	up := SimulatedUpkeep{}
	err := generateEligibles(&up, 9, 50, "4x + 5")
	expected := []uint64{14, 18, 22, 26, 30, 34, 38, 42, 46}

	assert.NoError(t, err)
	assert.Equal(t, expected, up.EligibleAt)
}

func TestGenerateEligibles_FromZero(t *testing.T) {
	up := SimulatedUpkeep{}
	err := generateEligibles(&up, 0, 10, "4x")

	assert.NoError(t, err)
	assert.Equal(t, []uint64{0, 4, 8}, up.EligibleAt)
}

func TestGenerateEligibles_Errors(t *testing.T) {
	up := SimulatedUpkeep{}

	assert.ErrorIs(t, generateEligibles(&up, 0, 10, "5"), ErrUpkeepGeneration)
	assert.ErrorIs(t, generateEligibles(&up, 0, 10, "0x + 5"), ErrUpkeepGeneration)
}

func TestOperate(t *testing.T) {
	tests := []struct {
		Name string
		A    int64
		B    int64
		Op   string
		ExpZ int64
	}{
		{Name: "Addition", A: 1, B: 4, Op: "+", ExpZ: 5},
		{Name: "Multiplication", A: 3, B: 4, Op: "*", ExpZ: 12},
		{Name: "Subtraction", A: 4, B: 2, Op: "-", ExpZ: 2},
		{Name: "Unknown", A: 4, B: 2, Op: "^", ExpZ: 0},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			a := decimal.NewFromInt(test.A)
			b := decimal.NewFromInt(test.B)

			z := operate(a, b, test.Op)

			assert.True(t, decimal.NewFromInt(test.ExpZ).Equal(z))
		})
	}
}
