package payment

import (
	"fmt"
	"time"
)

// Purchase states reported by the gateway.
const (
	PurchaseFinished = "PURCHASE_FINISHED"
	PurchaseStarted  = "PURCHASE_STARTED"
	PurchaseRejected = "PURCHASE_REJECTED"
)

// Transition describes the outcome of applying a purchase state to a transaction.
type Transition struct {
	Tx      Transaction
	From    TxState
	Changed bool
	// Ignored is set when the transaction was already done and nothing was written.
	Ignored bool
}

// TargetState maps a gateway purchase state onto a transaction state and the
// message recorded with it. Unknown states cancel the transaction.
func TargetState(purchaseState string) (TxState, string) {
	switch purchaseState {
	case PurchaseFinished:
		return TxStateDone, purchaseState
	case PurchaseStarted:
		return TxStatePending, purchaseState
	case PurchaseRejected:
		return TxStateCancel, purchaseState
	default:
		return TxStateCancel, fmt.Sprintf("Invalid State: %s", purchaseState)
	}
}

// ApplyPurchaseState computes the transaction record after a verified callback.
// Done is terminal: a done transaction is returned untouched.
func ApplyPurchaseState(tx Transaction, fields CallbackFields, now time.Time) Transition {
	from := tx.State
	if from == TxStateDone {
		return Transition{Tx: tx, From: from, Ignored: true}
	}
	target, message := TargetState(fields.State)
	tx.State = target
	tx.AcquirerReference = fields.Description
	tx.StateMessage = message
	tx.UpdatedAt = now
	if target == TxStateDone {
		paidAt := now
		tx.PaidAt = &paidAt
	}
	return Transition{Tx: tx, From: from, Changed: from != target}
}
