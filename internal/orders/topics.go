package orders

const (
	TopicOrderCreated       = "storefront.order.created"
	TopicOrderPaid          = "storefront.order.paid"
	TopicPaymentFailed      = "storefront.payment.failed"
	TopicPaymentUnmatched   = "storefront.payment.unmatched"
	TopicOrderStatusChanged = "storefront.order.status"
)

// Partition key = order id (or paystack reference), so one order's events stay ordered.
func PartitionKey(id string) []byte { return []byte(id) }
