package events

// Topic constants for domain events emitted by the payment flow.
const (
	TopicPaymentDone     = "payment.done"
	TopicPaymentPending  = "payment.pending"
	TopicPaymentCanceled = "payment.canceled"
)

// DefaultTopics returns the canonical list of payment topics.
func DefaultTopics() []string {
	return []string{
		TopicPaymentDone,
		TopicPaymentPending,
		TopicPaymentCanceled,
	}
}
