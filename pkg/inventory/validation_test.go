package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSale(t *testing.T) {
	price := MustMoney("15")
	badCost := MustMoney("-1")

	tests := []struct {
		name  string
		req   SaleRequest
		field string
	}{
		{"明細なし", SaleRequest{}, "lines"},
		{"数量0", SaleRequest{Lines: []SaleLineRequest{{ItemID: "ITEM-1", Qty: 0, UnitSellPrice: price}}}, "lines[0].qty"},
		{"不正な商品ID", SaleRequest{Lines: []SaleLineRequest{{ItemID: "bad id", Qty: 1, UnitSellPrice: price}}}, "item_id"},
		{"負のロット原価", SaleRequest{Lines: []SaleLineRequest{{ItemID: "ITEM-1", Qty: 1, UnitSellPrice: price, LotCost: &badCost}}}, "lines[0].lot_cost"},
		{"不正な冪等キー", SaleRequest{IdempotencyKey: "a b", Lines: []SaleLineRequest{{ItemID: "ITEM-1", Qty: 1, UnitSellPrice: price}}}, "idempotency_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSale(tt.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateTransfer_SameLocation(t *testing.T) {
	err := ValidateTransfer(TransferRequest{
		ItemID: "ITEM-1", UnitCost: MustMoney("10"),
		From: LocationPharmacy, To: LocationPharmacy, Qty: 1,
	})

	var be *BusinessRuleError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "same_location", be.Rule)
	assert.True(t, IsDomainError(err))
}

func TestValidateMoney(t *testing.T) {
	assert.NoError(t, ValidateMoney("price", MustMoney("0")))
	assert.NoError(t, ValidateMoney("price", maxMoney))
	assert.NoError(t, ValidateMoney("price", decimal.RequireFromString("10.50")))
	assert.Error(t, ValidateMoney("price", maxMoney.Add(MustMoney("0.01"))))
	assert.Error(t, ValidateMoney("price", MustMoney("-0.01")))
	assert.Error(t, ValidateMoney("price", decimal.RequireFromString("10.004")))
	assert.Error(t, ValidateMoney("price", MustMoney("1").Div(MustMoney("3"))))
}

func TestValidateIntake_FreePacksOnly(t *testing.T) {
	req := IntakeRequest{
		Destination: LocationMainStore,
		Item:        ItemSpec{Name: "Cetirizine", Weight: "10mg"},
		FreePacks:   6,
		BuyPrice:    MustMoney("0"),
	}
	assert.NoError(t, ValidateIntake(req))

	req.FreePacks = 0
	var ve *ValidationError
	require.ErrorAs(t, ValidateIntake(req), &ve)
	assert.Equal(t, "pack_qty", ve.Field)
}
