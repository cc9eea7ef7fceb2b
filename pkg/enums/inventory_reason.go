package enums

import "fmt"

// InventoryReason labels an inventory ledger movement.
type InventoryReason string

const (
	InventoryReasonOrderReserve    InventoryReason = "order_reserve"
	InventoryReasonOrderRelease    InventoryReason = "order_release"
	InventoryReasonReturnRelease   InventoryReason = "return_release"
	InventoryReasonExchangeReserve InventoryReason = "exchange_reserve"
	InventoryReasonReturnReversal  InventoryReason = "return_reversal"
)

var validInventoryReasonValues = []InventoryReason{
	InventoryReasonOrderReserve,
	InventoryReasonOrderRelease,
	InventoryReasonReturnRelease,
	InventoryReasonExchangeReserve,
	InventoryReasonReturnReversal,
}

// String implements fmt.Stringer.
func (i InventoryReason) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InventoryReason.
func (i InventoryReason) IsValid() bool {
	for _, candidate := range validInventoryReasonValues {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInventoryReason converts raw input into a InventoryReason.
func ParseInventoryReason(value string) (InventoryReason, error) {
	for _, candidate := range validInventoryReasonValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory reason %q", value)
}
