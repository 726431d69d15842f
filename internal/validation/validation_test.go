package validation

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	Symbol string  `json:"symbol" binding:"required,max=4"`
	Side   string  `json:"side" binding:"oneof=buy sell"`
	Qty    int     `json:"qty" binding:"gte=1"`
	Code   string  `json:"code" binding:"omitempty,even_len"`
	Limits limits  `json:"limits"`
	Price  float64 `json:"price" binding:"omitempty,gt=0"`
}

type limits struct {
	Stop float64 `json:"stop" binding:"lt=100"`
}

func init() {
	RegisterTag("even_len", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String())%2 == 0
	}, "must have an even length")
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	err := Struct(order{
		Symbol: "TOOLONG",
		Side:   "hold",
		Code:   "abc",
		Limits: limits{Stop: 150},
		Price:  -2,
	})
	require.Error(t, err)

	fields := FromBindError(err).Fields
	assert.Equal(t, "must be at most 4 characters", fields["symbol"])
	assert.Equal(t, "must be one of buy, sell", fields["side"])
	assert.Equal(t, "must be 1 or greater", fields["qty"])
	assert.Equal(t, "must have an even length", fields["code"])
	assert.Equal(t, "must be less than 100", fields["limits.stop"])
	assert.Equal(t, "must be greater than 0", fields["price"])
	assert.NotContains(t, fields, "body")
}

func TestStructPasses(t *testing.T) {
	assert.NoError(t, Struct(order{Symbol: "AAPL", Side: "buy", Qty: 3, Code: "ab"}))
}

func TestRequiredMessage(t *testing.T) {
	fields := FromBindError(Struct(order{Side: "sell", Qty: 1})).Fields
	assert.Equal(t, map[string]string{"symbol": "is required"}, fields)
}

func TestDecodeErrorsNamed(t *testing.T) {
	decode := func(body string) map[string]string {
		t.Helper()
		var o order
		err := json.NewDecoder(strings.NewReader(body)).Decode(&o)
		require.Error(t, err)
		return FromBindError(err).Fields
	}

	assert.Equal(t, map[string]string{"qty": "must be a whole number"}, decode(`{"qty":"three"}`))
	assert.Equal(t, map[string]string{"price": "must be a number"}, decode(`{"price":"ten"}`))
	assert.Equal(t, map[string]string{"symbol": "must be a string"}, decode(`{"symbol":12}`))
	assert.Equal(t, map[string]string{"limits": "must be an object"}, decode(`{"limits":[1]}`))
	assert.Equal(t, map[string]string{"limits.stop": "must be a number"}, decode(`{"limits":{"stop":true}}`))
	assert.Equal(t, map[string]string{"body": "must be valid JSON"}, decode(`{"qty":`))
	assert.Equal(t, map[string]string{"body": "must be valid JSON"}, decode(`{qty}`))
	assert.Equal(t, map[string]string{"body": "must be a valid JSON object"}, decode(`[1,2]`))
}

func TestEmptyBody(t *testing.T) {
	assert.Equal(t, map[string]string{"body": "is required"}, FromBindError(io.EOF).Fields)
}
