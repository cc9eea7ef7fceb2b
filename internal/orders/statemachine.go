package orders

import (
	"github.com/angelmondragon/storefront-orders/pkg/enums"
)

// forward holds the happy-path adjacency. Cancellation is handled by Policy.
var forward = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusPlaced:     enums.OrderStatusConfirming,
	enums.OrderStatusConfirming: enums.OrderStatusPacking,
	enums.OrderStatusPacking:    enums.OrderStatusShipping,
	enums.OrderStatusShipping:   enums.OrderStatusDelivered,
}

// Policy decides which statuses may still be cancelled.
type Policy struct {
	// Strict limits cancellation to Placed orders.
	Strict bool
}

// Cancellable reports whether an order in status may move to Cancelled.
func (p Policy) Cancellable(status enums.OrderStatus) bool {
	switch status {
	case enums.OrderStatusPlaced:
		return true
	case enums.OrderStatusConfirming, enums.OrderStatusPacking:
		return !p.Strict
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an allowed edge.
func (p Policy) CanTransition(from, to enums.OrderStatus) bool {
	if from.IsTerminal() || !to.IsValid() {
		return false
	}
	if to == enums.OrderStatusCancelled {
		return p.Cancellable(from)
	}
	next, ok := forward[from]
	return ok && next == to
}

// NextStatuses lists the statuses reachable from status.
func (p Policy) NextStatuses(status enums.OrderStatus) []enums.OrderStatus {
	var out []enums.OrderStatus
	if next, ok := forward[status]; ok {
		out = append(out, next)
	}
	if p.Cancellable(status) {
		out = append(out, enums.OrderStatusCancelled)
	}
	return out
}
