package rollup

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costbook/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func lineItem(id string, t core.LineItemType, rate, qty string, milestones ...string) core.CostLineItem {
	return core.CostLineItem{
		ID:           id,
		Type:         t,
		RoleOrSKU:    id,
		Rate:         nd(rate),
		Qty:          nd(qty),
		MilestoneIDs: milestones,
	}
}

func material(id string, ct core.CostType, price, qty string, milestones ...string) core.MaterialCost {
	return core.MaterialCost{
		ID:           id,
		SKU:          id,
		UnitPrice:    d(price),
		Qty:          d(qty),
		CostType:     ct,
		MilestoneIDs: milestones,
	}
}

func TestComputeMilestoneTotals_LabourAndService(t *testing.T) {
	items := []core.CostLineItem{
		lineItem("li-1", core.Labour, "100", "40", "M1"),
		lineItem("li-2", core.Service, "50", "20", "M1"),
	}
	milestones := []core.Milestone{{ID: "M1", Code: "M1", Name: "Build"}}

	got, err := ComputeMilestoneTotals(items, nil, milestones)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), got.Total)
	assert.Equal(t, int64(500000), got.ByMilestoneID["M1"])
	assert.Zero(t, got.Unassigned)
}

func TestComputeMilestoneTotals_Empty(t *testing.T) {
	got, err := ComputeMilestoneTotals(nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Total)
	assert.NotNil(t, got.ByMilestoneID)
	assert.Empty(t, got.ByMilestoneID)
}

func TestComputeMilestoneTotals_Attribution(t *testing.T) {
	milestones := []core.Milestone{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	items := []core.CostLineItem{
		lineItem("shared", core.Equipment, "10", "1", "A", "B"),
		lineItem("loose", core.Labour, "7.50", "2"),
		{ID: "no-rate", Type: core.Labour, RoleOrSKU: "x", Qty: nd("3"), MilestoneIDs: []string{"A"}},
	}

	got, err := ComputeMilestoneTotals(items, nil, milestones)
	require.NoError(t, err)
	assert.Equal(t, int64(1000+1500), got.Total, "each contribution counted once")
	assert.Equal(t, int64(1500), got.Unassigned)
	assert.Equal(t, map[string]int64{"A": 1000, "B": 1000, "C": 0}, got.ByMilestoneID)
}

func TestComputeMilestoneTotals_UnknownMilestoneStillKeyed(t *testing.T) {
	items := []core.CostLineItem{lineItem("li", core.Labour, "1", "1", "ghost")}
	got, err := ComputeMilestoneTotals(items, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.ByMilestoneID["ghost"])
}

func TestComputeMilestoneTotals_MilestoneSplitRemainder(t *testing.T) {
	materials := []core.MaterialCost{material("mat", core.MilestoneShared, "100", "1", "B", "A", "C")}
	got, err := ComputeMilestoneTotals(nil, materials, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), got.Total)
	assert.Equal(t, int64(3334), got.ByMilestoneID["B"], "first listed id takes the remainder")
	assert.Equal(t, int64(3333), got.ByMilestoneID["A"])
	assert.Equal(t, int64(3333), got.ByMilestoneID["C"])
}

func TestComputeMilestoneTotals_MilestoneSplitWithoutIDs(t *testing.T) {
	materials := []core.MaterialCost{material("mat", core.MilestoneShared, "12.34", "1")}
	got, err := ComputeMilestoneTotals(nil, materials, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.Total)
	assert.Equal(t, int64(1234), got.Unassigned)
}

func TestComputeMilestoneTotals_Monthly(t *testing.T) {
	mc := material("rent", core.Monthly, "150", "1", "M1")
	mc.StartDate = core.NewDate(2025, 1, 31)
	mc.EndDate = core.NewDate(2025, 3, 1)

	got, err := ComputeMilestoneTotals(nil, []core.MaterialCost{mc}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3*15000), got.Total)
	assert.Equal(t, int64(3*15000), got.ByMilestoneID["M1"])
}

func TestComputeMilestoneTotals_MonthlyInvertedRange(t *testing.T) {
	mc := material("rent", core.Monthly, "150", "1")
	mc.StartDate = core.NewDate(2025, 3, 1)
	mc.EndDate = core.NewDate(2025, 1, 1)

	_, err := ComputeMilestoneTotals(nil, []core.MaterialCost{mc}, nil)
	require.ErrorIs(t, err, core.ErrInvalidDateRange)

	var itemErr *core.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "rent", itemErr.ID)
	assert.Equal(t, "material", itemErr.Kind)
}

func TestComputeMilestoneTotals_InvalidItemFailsWholeCall(t *testing.T) {
	items := []core.CostLineItem{
		lineItem("ok", core.Labour, "1", "1", "M1"),
		lineItem("bad", core.Labour, "-1", "1", "M1"),
	}
	_, err := ComputeMilestoneTotals(items, nil, nil)
	require.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestComputeMilestoneTotals_Overflow(t *testing.T) {
	huge := decimal.New(core.MaxSafeCents/2+1, -2)
	items := []core.CostLineItem{
		{ID: "a", Type: core.Labour, RoleOrSKU: "a", Rate: decimal.NewNullDecimal(huge), Qty: nd("1")},
		{ID: "b", Type: core.Labour, RoleOrSKU: "b", Rate: decimal.NewNullDecimal(huge), Qty: nd("1")},
	}
	_, err := ComputeMilestoneTotals(items, nil, nil)
	require.ErrorIs(t, err, core.ErrArithmeticOverflow)
}

func TestComputeMilestoneTotals_OrderIndependent(t *testing.T) {
	items := []core.CostLineItem{
		lineItem("1", core.Labour, "12.345", "3", "A"),
		lineItem("2", core.Service, "0.01", "999", "A", "B"),
		lineItem("3", core.Equipment, "250", "1"),
	}
	materials := []core.MaterialCost{
		material("m1", core.OneTime, "9.99", "7", "B"),
		material("m2", core.MilestoneShared, "10", "1", "A", "B", "C"),
	}
	milestones := []core.Milestone{{ID: "A"}, {ID: "B"}, {ID: "C"}}

	forward, err := ComputeMilestoneTotals(items, materials, milestones)
	require.NoError(t, err)

	rItems := []core.CostLineItem{items[2], items[0], items[1]}
	rMaterials := []core.MaterialCost{materials[1], materials[0]}
	rMilestones := []core.Milestone{milestones[2], milestones[1], milestones[0]}
	reversed, err := ComputeMilestoneTotals(rItems, rMaterials, rMilestones)
	require.NoError(t, err)

	assert.Equal(t, forward, reversed)
}

func TestMonthsInRange(t *testing.T) {
	cases := []struct {
		name       string
		start, end core.Date
		want       int64
	}{
		{"same month", core.NewDate(2025, 4, 1), core.NewDate(2025, 4, 30), 1},
		{"across year", core.NewDate(2024, 11, 15), core.NewDate(2025, 2, 1), 4},
		{"no start", core.Date{}, core.NewDate(2025, 2, 1), 1},
		{"no end", core.NewDate(2025, 2, 1), core.Date{}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MonthsInRange(tc.start, tc.end)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitEven(t *testing.T) {
	assert.Equal(t, []int64{34, 33, 33}, SplitEven(100, 3))
	assert.Equal(t, []int64{0, 0}, SplitEven(0, 2))
	assert.Equal(t, []int64{7}, SplitEven(7, 1))
	assert.Nil(t, SplitEven(10, 0))
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"b", "a"}, UniqueIDs([]string{"b", "", "a", "b"}))
	assert.Nil(t, UniqueIDs(nil))
}
