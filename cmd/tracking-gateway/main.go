// cmd/tracking-gateway/main.go
package main

import (
	"net/http"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/constants"
	"atelier/internal/pkg/mq"
	"atelier/internal/service/tracking"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "tracking-gateway"
	servicePort = 8088
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

	hub := tracking.NewHub()
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.BrokerList(), constants.OrderEventsTopic, constants.TrackingGatewayGroup)
	consumer := tracking.NewStatusEventConsumer(reader, hub, tracer)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				hub.ServeWs(w, r)
			})
		},
		Runners: []bootstrap.Runner{hub, consumer},
	})
}
