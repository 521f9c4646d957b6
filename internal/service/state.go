package service

import "github.com/ayo6706/campus-courier/internal/domain"

var orderTransitions = map[string]map[string]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusAccepted:  {},
		domain.OrderStatusCancelled: {},
	},
	domain.OrderStatusAccepted: {
		domain.OrderStatusPreparing: {},
	},
	domain.OrderStatusPreparing: {
		domain.OrderStatusReady: {},
	},
	domain.OrderStatusReady: {
		domain.OrderStatusPickedUp: {},
	},
	domain.OrderStatusPickedUp: {
		domain.OrderStatusDelivered: {},
	},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

var withdrawalTransitions = map[string]map[string]struct{}{
	domain.WithdrawalStatusPending: {
		domain.WithdrawalStatusProcessing: {},
	},
	domain.WithdrawalStatusProcessing: {
		domain.WithdrawalStatusCompleted: {},
		domain.WithdrawalStatusFailed:    {},
	},
	domain.WithdrawalStatusCompleted: {},
	domain.WithdrawalStatusFailed:    {},
}

func canTransition(table map[string]map[string]struct{}, current, next string) bool {
	nextStates, ok := table[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// canAgentAdvance reports whether an assigned agent may move an order from current
// to next. Acceptance happens only through a claim and cancellation only through
// the checkout side.
func canAgentAdvance(current, next string) bool {
	if next == domain.OrderStatusAccepted || next == domain.OrderStatusCancelled {
		return false
	}
	return canTransition(orderTransitions, current, next)
}
