// cmd/commerce-service/main.go
package main

import (
	"log"
	"os"
	"time"

	"atelier/internal/pkg/bootstrap"
	"atelier/internal/pkg/constants"
	"atelier/internal/pkg/httpclient"
	"atelier/internal/pkg/keylock"
	"atelier/internal/pkg/mq"
	"atelier/internal/pkg/nacos"
	"atelier/internal/pkg/redis"
	"atelier/internal/pkg/zookeeper"
	"atelier/internal/service/commerce/application"
	"atelier/internal/service/commerce/domain"
	"atelier/internal/service/commerce/domain/port"
	"atelier/internal/service/commerce/infrastructure/adapter"
	"atelier/internal/service/commerce/infrastructure/persistence"
	"atelier/internal/service/commerce/infrastructure/rule"
	"atelier/internal/service/commerce/infrastructure/store"
	"atelier/internal/service/commerce/interfaces"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
)

const (
	serviceName = "commerce-service"
	servicePort = 8080

	zkSessionTimeout = 5 * time.Second
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

	// 1. 运费规则引擎（启动时编译，规则有语法错误直接拒绝启动）
	defaultShipping, err := decimal.NewFromString(cfg.App.DefaultShippingCost)
	if err != nil {
		log.Fatalf("invalid default shipping cost %q: %v", cfg.App.DefaultShippingCost, err)
	}
	shippingRules := make([]rule.Rule, 0, len(cfg.App.ShippingRules))
	for _, r := range cfg.App.ShippingRules {
		shippingRules = append(shippingRules, rule.Rule{Name: r.Name, When: r.When, Cost: r.Cost})
	}
	quoter, err := rule.NewCELShippingEngine(shippingRules, defaultShipping)
	if err != nil {
		log.Fatalf("failed to compile shipping rules: %v", err)
	}

	// 2. 存储、锁与服务发现
	var (
		inventoryRepo domain.InventoryRepository
		orderRepo     domain.OrderRepository
		returnRepo    domain.ReturnRepository
		holds         domain.ReservationStore
		carts         domain.CartStore
		locker        port.ResourceLocker
		naming        *nacos.Client
		resolver      httpclient.InstanceResolver
	)

	if cfg.App.MemoryMode {
		log.Println("Memory mode enabled, using in-process repositories and stores.")
		inventoryRepo = persistence.NewMemoryInventoryRepository()
		orderRepo = persistence.NewMemoryOrderRepository()
		returnRepo = persistence.NewMemoryReturnRepository()
		holds = store.NewMemoryReservationStore()
		carts = store.NewMemoryCartStore()
		locker = keylock.New()
		resolver = staticResolver()
	} else {
		db, err := persistence.OpenMysql(cfg.Infra.Mysql)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		inventoryRepo = persistence.NewGormInventoryRepository(db)
		orderRepo = persistence.NewGormOrderRepository(db)
		returnRepo = persistence.NewGormReturnRepository(db)

		redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr)
		if err != nil {
			log.Fatalf("failed to initialize redis client: %v", err)
		}
		holds, err = store.NewRedisReservationStore(redisClient, cfg.App.ReservationTTL)
		if err != nil {
			log.Fatalf("failed to initialize reservation store: %v", err)
		}
		carts = store.NewRedisCartStore(redisClient, cfg.App.CartTTL)

		switch cfg.App.LockMode {
		case "zookeeper":
			zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.ServerList(), zkSessionTimeout)
			if err != nil {
				log.Fatalf("failed to connect to zookeeper: %v", err)
			}
			locker = adapter.NewZkLockerAdapter(zkConn)
		default:
			locker = keylock.New()
		}

		if cfg.Infra.Nacos.Enabled {
			naming, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
			if err != nil {
				log.Fatalf("failed to initialize nacos client: %v", err)
			}
			resolver = naming
		} else {
			resolver = staticResolver()
		}
	}

	// 3. 下游协作服务适配器
	httpClient := httpclient.NewClient(tracer, resolver)
	catalog := adapter.NewCatalogHTTPAdapter(httpClient)
	payment := adapter.NewPaymentHTTPAdapter(httpClient)
	promos := adapter.NewPromotionHTTPAdapter(httpClient)

	eventWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.BrokerList(), constants.OrderEventsTopic)
	defer eventWriter.Close()
	events := adapter.NewOrderEventKafkaAdapter(eventWriter)

	// 4. 应用服务
	ledger := application.NewInventoryLedger(inventoryRepo, locker, tracer)
	cartService := application.NewCartService(ledger, carts, holds, catalog, promos, locker, cfg.App.ReservationTTL, tracer)
	orderService := application.NewOrderService(
		orderRepo, returnRepo, cartService, ledger, holds, carts,
		payment, promos, quoter, events, defaultShipping, tracer,
	)
	sweeper := application.NewReservationSweeper(holds, ledger, cfg.App.SweepInterval, tracer)

	commerceHandler := interfaces.NewCommerceHandler(ledger, cartService, orderService)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Nacos:       naming,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			commerceHandler.RegisterRoutes(appCtx.Mux)
		},
		Runners: []bootstrap.Runner{sweeper},
	})
}

// staticResolver 为本地开发提供固定的下游地址表。
func staticResolver() httpclient.StaticResolver {
	return httpclient.StaticResolver{
		constants.CatalogService:   getEnv("CATALOG_ADDR", "localhost:8091"),
		constants.PaymentService:   getEnv("PAYMENT_ADDR", "localhost:8092"),
		constants.PromotionService: getEnv("PROMOTION_ADDR", "localhost:8093"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
