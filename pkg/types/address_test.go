package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippingAddressValueRequiresLine1AndCity(t *testing.T) {
	_, err := ShippingAddress{City: "Hanoi", Country: "VN"}.Value()
	require.Error(t, err)

	_, err = ShippingAddress{Line1: "12 Hang Bac", Country: "VN"}.Value()
	require.Error(t, err)
}

func TestShippingAddressScanAcceptsStringAndBytes(t *testing.T) {
	raw := `{"line1":"12 Hang Bac","city":"Hanoi","country":"VN"}`

	var fromString ShippingAddress
	require.NoError(t, fromString.Scan(raw))
	assert.Equal(t, "Hanoi", fromString.City)

	var fromBytes ShippingAddress
	require.NoError(t, fromBytes.Scan([]byte(raw)))
	assert.Equal(t, "12 Hang Bac", fromBytes.Line1)

	var bad ShippingAddress
	require.Error(t, bad.Scan(42))
}

func TestPresentationNilValueIsEmptyObject(t *testing.T) {
	var p Presentation
	value, err := p.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), value)

	var decoded Presentation
	require.NoError(t, decoded.Scan(`{"pay_url":"https://pay.example.com/x"}`))
	assert.Equal(t, "https://pay.example.com/x", decoded["pay_url"])
}
