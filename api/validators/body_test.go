package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
)

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"min=1"`
}

type orderRequest struct {
	Name   string        `json:"name" validate:"required,max=10"`
	Method string        `json:"method" validate:"oneof=cod wallet_qr"`
	Items  []itemRequest `json:"items" validate:"required,min=1,dive"`
}

func decode(t *testing.T, body string) (*orderRequest, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var out orderRequest
	err := DecodeJSONBody(req, &out)
	return &out, err
}

func TestDecodeJSONBodyValid(t *testing.T) {
	out, err := decode(t, `{"name":"Ana","method":"cod","items":[{"product_id":"5f0f8d9c-4b7c-4d55-9c55-000000000001","qty":2}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Items[0].Qty)
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	_, err := decode(t, `{"name":"","method":"cash","items":[{"product_id":"nope","qty":0}]}`)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details := typed.Details().(map[string]string)
	assert.Equal(t, "is required", details["name"])
	assert.Contains(t, details["method"], "must be one of")
	assert.Equal(t, "must be a valid uuid", details["items[0].product_id"])
	assert.Equal(t, "must be at least 1", details["items[0].qty"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	_, err := decode(t, `{"name":"Ana","method":"cod","items":[],"total_override":"0"}`)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abcdef", SanitizeString("abc\x00def", 0))
	assert.Equal(t, "Trả", SanitizeString("Trả hàng", 3))
}
