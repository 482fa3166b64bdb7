package mapping

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbridge/backend/internal/domain/sync"
)

func TestTranslateOutbound(t *testing.T) {
	table := DefaultTable()

	t.Run("maps customer fields to destination names", func(t *testing.T) {
		record := map[string]string{
			"CompanyName":      "Globex",
			"Email":            "info@globex.test",
			"BillAddress.City": "Springfield",
			"Unmapped":         "dropped silently",
		}

		out, err := Translate(table, sync.EntityCustomer, record, DirectionOutbound)
		require.NoError(t, err)
		assert.Equal(t, "Globex", out["name"])
		assert.Equal(t, "info@globex.test", out["email"])
		assert.Equal(t, "Springfield", out["city"])
		assert.NotContains(t, out, "Unmapped")
	})

	t.Run("missing required field is a per-record failure", func(t *testing.T) {
		_, err := Translate(table, sync.EntityCustomer, map[string]string{"Email": "x@y.test"}, DirectionOutbound)

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, sync.EntityCustomer, vErr.Entity)
		assert.Equal(t, "name", vErr.Field)
	})

	t.Run("defaults fill empty sources", func(t *testing.T) {
		out, err := Translate(table, sync.EntityItem, map[string]string{"FullName": "Widget"}, DirectionOutbound)
		require.NoError(t, err)
		assert.Equal(t, true, out["active"])
	})

	t.Run("amounts become decimals", func(t *testing.T) {
		record := map[string]string{"FullName": "Widget", "SalesPrice": "19.99"}
		out, err := Translate(table, sync.EntityItem, record, DirectionOutbound)
		require.NoError(t, err)

		price, ok := out["list_price"].(decimal.Decimal)
		require.True(t, ok)
		assert.True(t, price.Equal(decimal.RequireFromString("19.99")))
	})

	t.Run("unparsable amount is rejected", func(t *testing.T) {
		record := map[string]string{"FullName": "Widget", "SalesPrice": "nineteen"}
		_, err := Translate(table, sync.EntityItem, record, DirectionOutbound)
		assert.ErrorIs(t, err, ErrUnparsableValue)
	})

	t.Run("name pair folds into the display form", func(t *testing.T) {
		record := map[string]string{
			"CompanyName": "Globex",
			"FirstName":   "Hank",
			"LastName":    "Scorpio",
		}
		out, err := Translate(table, sync.EntityCustomer, record, DirectionOutbound)
		require.NoError(t, err)
		assert.Equal(t, "Scorpio, Hank", out["contact_name"])
	})

	t.Run("unknown entity type", func(t *testing.T) {
		_, err := Translate(table, "LEDGER", map[string]string{}, DirectionOutbound)
		assert.ErrorIs(t, err, ErrTableUnknownEntity)
	})
}

func TestTranslateInbound(t *testing.T) {
	table := DefaultTable()

	t.Run("reverses the outbound mapping", func(t *testing.T) {
		record := map[string]string{"name": "Globex", "email": "info@globex.test"}
		out, err := Translate(table, sync.EntityCustomer, record, DirectionInbound)
		require.NoError(t, err)
		assert.Equal(t, "Globex", out["CompanyName"])
		assert.Equal(t, "info@globex.test", out["Email"])
	})

	t.Run("splits the combined name", func(t *testing.T) {
		record := map[string]string{"name": "Globex", "contact_name": "Scorpio, Hank"}
		out, err := Translate(table, sync.EntityCustomer, record, DirectionInbound)
		require.NoError(t, err)
		assert.Equal(t, "Hank", out["FirstName"])
		assert.Equal(t, "Scorpio", out["LastName"])
	})
}

func TestNameRoundTrip(t *testing.T) {
	cases := []struct {
		first, last string
	}{
		{"Hank", "Scorpio"},
		{"Hank", ""},
		{"", "Scorpio"},
		{"", ""},
		{"Mary Jane", "van der Berg"},
		{"John", "Smith, Jr."},
		{"", "Smith, Jr."},
	}
	for _, tc := range cases {
		first, last := SplitName(CombineName(tc.first, tc.last))
		assert.Equal(t, tc.first, first, "first name for %q/%q", tc.first, tc.last)
		assert.Equal(t, tc.last, last, "last name for %q/%q", tc.first, tc.last)
	}
}

func TestNewTable(t *testing.T) {
	t.Run("rejects a combine rule with one source", func(t *testing.T) {
		_, err := NewTable(map[sync.EntityType][]FieldRule{
			sync.EntityCustomer: {
				{Sources: []string{"FirstName"}, Dest: "contact_name", Transform: TransformCombineName},
			},
		})
		assert.ErrorIs(t, err, ErrTableInvalidRule)
	})

	t.Run("rejects a plain rule with two sources", func(t *testing.T) {
		_, err := NewTable(map[sync.EntityType][]FieldRule{
			sync.EntityCustomer: {
				{Sources: []string{"A", "B"}, Dest: "x"},
			},
		})
		assert.ErrorIs(t, err, ErrTableInvalidRule)
	})

	t.Run("rejects an unknown entity", func(t *testing.T) {
		_, err := NewTable(map[sync.EntityType][]FieldRule{
			"LEDGER": {{Sources: []string{"A"}, Dest: "x"}},
		})
		assert.ErrorIs(t, err, ErrTableUnknownEntity)
	})

	t.Run("default table covers every entity type", func(t *testing.T) {
		table := DefaultTable()
		for _, entity := range sync.EntityOrder() {
			rules, err := table.Rules(entity)
			require.NoError(t, err)
			assert.NotEmpty(t, rules)
		}
	})
}
