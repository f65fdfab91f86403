// internal/pkg/constants/constants.go
package constants

// 下游协作服务在注册中心里的服务名。
const (
	CatalogService   = "catalog-service"
	PaymentService   = "payment-service"
	PromotionService = "promotion-service"
)

// 下游协作服务的接口路径。
const (
	CatalogGetProductPath = "/api/products/"

	PaymentCapturePath = "/api/payments/capture"
	PaymentRefundPath  = "/api/payments/refund"

	PromotionValidatePath    = "/api/promos/validate"
	PromotionRecordUsagePath = "/api/promos/usage"
)

// Kafka Topic 与消费组。
const (
	OrderEventsTopic    = "commerce.order-events"
	OrderEventsDLTTopic = "commerce.order-events.dlt"

	NotificationConsumerGroup = "notification-worker"
	TrackingGatewayGroup      = "tracking-gateway"
)
