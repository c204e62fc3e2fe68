package orders

import "github.com/angelmondragon/stocksync-backend/pkg/enums"

// ledgerEffect is what a transition does to each item's stock.
type ledgerEffect int

const (
	effectNone ledgerEffect = iota
	effectConfirm
	effectRelease
	effectReturn
)

// PENDING has nothing sold yet, so it can be cancelled but not returned.
var transitions = map[enums.OrderStatus]map[enums.OrderStatus]ledgerEffect{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed: effectConfirm,
		enums.OrderStatusCancelled: effectRelease,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusShipped:   effectNone,
		enums.OrderStatusCancelled: effectReturn,
		enums.OrderStatusReturned:  effectReturn,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusDelivered: effectNone,
		enums.OrderStatusCancelled: effectReturn,
		enums.OrderStatusReturned:  effectReturn,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusReturned: effectReturn,
	},
}

// transitionEffect reports whether from -> to is allowed and the ledger effect it carries.
func transitionEffect(from, to enums.OrderStatus) (ledgerEffect, bool) {
	next, ok := transitions[from]
	if !ok {
		return effectNone, false
	}
	effect, ok := next[to]
	return effect, ok
}

// AllowedTransitions lists the statuses reachable from status.
func AllowedTransitions(status enums.OrderStatus) []enums.OrderStatus {
	out := []enums.OrderStatus{}
	for _, candidate := range enums.OrderStatuses() {
		if _, ok := transitions[status][candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}
