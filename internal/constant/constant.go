package constant

const (
	ProductionEnvironment  = "production"
	DevelopmentEnvironment = "development"
)

const (
	OrderStreamName            = "orders"
	OrderStreamSubjectAll      = "orders.*"
	OrderStreamSubjectExecuted = "orders.executed"
	OrderExecutedQueueName     = "orders_executed"
	OrderExecutedQueueGroup    = "orders_executed_group"
)
