package orders

const (
	TopicOrderMail = "order.mail"
)

// PartitionKey keeps all messages of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
