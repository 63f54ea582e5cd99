package orders

import (
	"fmt"

	"github.com/nikhilbhat/swiftcart-backend/pkg/enums"
	pkgerrors "github.com/nikhilbhat/swiftcart-backend/pkg/errors"
)

// fulfillmentRank orders the forward-only delivery chain. Cancelled and
// refunded sit outside the chain and are handled explicitly.
var fulfillmentRank = map[enums.OrderStatus]int{
	enums.OrderStatusProcessing:     0,
	enums.OrderStatusPacked:         1,
	enums.OrderStatusShipped:        2,
	enums.OrderStatusOutForDelivery: 3,
	enums.OrderStatusDelivered:      4,
}

// CheckTransition validates a fulfillment transition. Delivered and cancelled
// are terminal; the only way out of delivered is a refund, which does not go
// through this path.
func CheckTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", to))
	}
	if from == to {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order already %s", from))
	}
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order already finalized as %s", from))
	}
	if to == enums.OrderStatusCancelled {
		return nil
	}
	if to == enums.OrderStatusRefunded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "refunded is only reachable through a refund")
	}
	fromRank, ok := fulfillmentRank[from]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot leave %s", from))
	}
	toRank := fulfillmentRank[to]
	if toRank <= fromRank {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s back to %s", from, to))
	}
	return nil
}

// CheckCancellable validates that an order can still be cancelled.
func CheckCancellable(from enums.OrderStatus) error {
	return CheckTransition(from, enums.OrderStatusCancelled)
}
