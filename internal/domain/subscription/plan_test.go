package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name       string
		planName   string
		priceID    string
		amount     string
		wantAmount string
		wantErr    string
	}{
		{name: "valid", planName: "monthly", priceID: "price_m", amount: "9.99", wantAmount: "9.99"},
		{name: "rounds to cents", planName: "monthly", priceID: "price_m", amount: "9.999", wantAmount: "10.00"},
		{name: "empty amount is zero", planName: "free", priceID: "price_f", amount: "", wantAmount: "0.00"},
		{name: "missing name", planName: " ", priceID: "price_m", amount: "1", wantErr: "name is required"},
		{name: "missing price", planName: "monthly", amount: "1", wantErr: "price id is required"},
		{name: "bad amount", planName: "monthly", priceID: "price_m", amount: "nine", wantErr: "invalid amount"},
		{name: "negative amount", planName: "monthly", priceID: "price_m", amount: "-1", wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.planName, tt.priceID, tt.amount, "USD", "month")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, plan.Amount.StringFixed(2))
			assert.Equal(t, "usd", plan.Currency)
		})
	}
}

func TestPlanCatalog(t *testing.T) {
	monthly, err := ParsePlan("monthly", "price_m", "9.99", "usd", "month")
	require.NoError(t, err)
	yearly, err := ParsePlan("yearly", "price_y", "79.99", "usd", "year")
	require.NoError(t, err)

	catalog, err := NewPlanCatalog([]Plan{monthly, yearly})
	require.NoError(t, err)

	got, ok := catalog.Lookup("yearly")
	assert.True(t, ok)
	assert.Equal(t, "price_y", got.PriceID)

	_, ok = catalog.Lookup("weekly")
	assert.False(t, ok)

	list := catalog.List()
	require.Len(t, list, 2)
	list[0].Name = "mutated"
	assert.Equal(t, "monthly", catalog.List()[0].Name)

	_, err = NewPlanCatalog([]Plan{monthly, monthly})
	assert.Error(t, err)
}
