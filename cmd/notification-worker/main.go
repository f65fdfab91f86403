// cmd/notification-worker/main.go
package main

import (
	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/constants"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/notification"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "notification-worker"
	servicePort = 8082
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)
	brokers := cfg.Infra.Kafka.BrokerList()

	reader := mq.NewKafkaReader(brokers, constants.OrderEventsTopic, constants.NotificationConsumerGroup)

	// 处理失败的事件送进死信主题，等待人工重放
	dltWriter := mq.NewKafkaWriter(brokers, constants.OrderEventsDLTTopic)
	defer dltWriter.Close()
	failureHandler := mq.NewFailureHandler(dltWriter)

	consumer := notification.NewOrderEventConsumer(reader, failureHandler, tracer)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		Runners: []bootstrap.Runner{consumer},
	})
}
