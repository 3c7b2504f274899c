package events

// Topic constants for domain events emitted by a machine.
const (
	TopicOrderCollected     = "order.collected"
	TopicPaymentRefunded    = "payment.refunded"
	TopicRefundForced       = "payment.refund_forced"
	TopicChangeInsufficient = "change.insufficient"
	TopicItemSoldOut        = "item.sold_out"
)

// DefaultTopics returns every topic a machine emits.
func DefaultTopics() []string {
	return []string{
		TopicOrderCollected,
		TopicPaymentRefunded,
		TopicRefundForced,
		TopicChangeInsufficient,
		TopicItemSoldOut,
	}
}
