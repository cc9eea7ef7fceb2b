package returns

import "github.com/angelmondragon/storefront-orders/pkg/enums"

var next = map[enums.ReturnStatus][]enums.ReturnStatus{
	enums.ReturnStatusPending:    {enums.ReturnStatusApproved, enums.ReturnStatusRejected},
	enums.ReturnStatusApproved:   {enums.ReturnStatusProcessing, enums.ReturnStatusRejected},
	enums.ReturnStatusProcessing: {enums.ReturnStatusCompleted},
}

// CanAdvance reports whether a request may move from one status to another.
// Completed and rejected are terminal.
func CanAdvance(from, to enums.ReturnStatus) bool {
	for _, candidate := range next[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

type stockEffect int

const (
	effectNone stockEffect = iota
	effectRelease
	effectReserve
)

// effectOf names the inventory movement that moving from one status to
// another causes. A return puts units back on approval and takes them out
// again if the approved request is later rejected. An exchange reserves the
// replacement when processing starts and takes the returned units back on
// completion.
func effectOf(kind enums.ReturnType, from, to enums.ReturnStatus) (stockEffect, enums.InventoryReason) {
	switch {
	case kind == enums.ReturnTypeReturn && to == enums.ReturnStatusApproved:
		return effectRelease, enums.InventoryReasonReturnRelease
	case kind == enums.ReturnTypeReturn && from == enums.ReturnStatusApproved && to == enums.ReturnStatusRejected:
		return effectReserve, enums.InventoryReasonReturnReversal
	case kind == enums.ReturnTypeExchange && to == enums.ReturnStatusProcessing:
		return effectReserve, enums.InventoryReasonExchangeReserve
	case kind == enums.ReturnTypeExchange && to == enums.ReturnStatusCompleted:
		return effectRelease, enums.InventoryReasonReturnRelease
	default:
		return effectNone, ""
	}
}
