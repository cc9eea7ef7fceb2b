package orders

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

func TestPolicyCanTransition(t *testing.T) {
	lenient := Policy{}
	strict := Policy{Strict: true}

	cases := []struct {
		from, to enums.OrderStatus
		lenient  bool
		strict   bool
	}{
		{enums.OrderStatusPlaced, enums.OrderStatusConfirming, true, true},
		{enums.OrderStatusConfirming, enums.OrderStatusPacking, true, true},
		{enums.OrderStatusPacking, enums.OrderStatusShipping, true, true},
		{enums.OrderStatusShipping, enums.OrderStatusDelivered, true, true},
		{enums.OrderStatusPlaced, enums.OrderStatusPacking, false, false},
		{enums.OrderStatusDelivered, enums.OrderStatusShipping, false, false},
		{enums.OrderStatusShipping, enums.OrderStatusPacking, false, false},
		{enums.OrderStatusPlaced, enums.OrderStatusCancelled, true, true},
		{enums.OrderStatusConfirming, enums.OrderStatusCancelled, true, false},
		{enums.OrderStatusPacking, enums.OrderStatusCancelled, true, false},
		{enums.OrderStatusShipping, enums.OrderStatusCancelled, false, false},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled, false, false},
		{enums.OrderStatusCancelled, enums.OrderStatusPlaced, false, false},
		{enums.OrderStatusCancelled, enums.OrderStatusCancelled, false, false},
		{enums.OrderStatusPlaced, enums.OrderStatus("lost"), false, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.lenient, lenient.CanTransition(tc.from, tc.to), "lenient %s -> %s", tc.from, tc.to)
		assert.Equalf(t, tc.strict, strict.CanTransition(tc.from, tc.to), "strict %s -> %s", tc.from, tc.to)
	}
}

func TestPolicyNextStatuses(t *testing.T) {
	assert.Equal(t,
		[]enums.OrderStatus{enums.OrderStatusPacking, enums.OrderStatusCancelled},
		Policy{}.NextStatuses(enums.OrderStatusConfirming))
	assert.Equal(t,
		[]enums.OrderStatus{enums.OrderStatusPacking},
		Policy{Strict: true}.NextStatuses(enums.OrderStatusConfirming))
	assert.Empty(t, Policy{}.NextStatuses(enums.OrderStatusDelivered))
}

func TestGenerateCode(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	code := GenerateCode(" ord ", now)
	assert.Regexp(t, regexp.MustCompile(`^ORD20260304050607\d{4}$`), code)
	assert.Regexp(t, `^ORD`, GenerateCode("", now))
}
