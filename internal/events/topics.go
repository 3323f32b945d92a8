package events

// Topic constants for domain events emitted by the checkout flow.
const (
	TopicOrderCreated  = "order.created"
	TopicOrderPaid     = "order.paid"
	TopicOrderExpired  = "order.expired"
	TopicPaymentFailed = "payment.failed"
)

// DefaultTopics returns the canonical list of topics the worker subscribes to.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderExpired,
		TopicPaymentFailed,
	}
}

// TaskType is the asynq task type carrying events of topic.
func TaskType(topic string) string { return "event:" + topic }
