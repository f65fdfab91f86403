// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"atelier/internal/pkg/logger"
	"atelier/internal/pkg/nacos"
	"atelier/internal/pkg/tracing"
	"atelier/internal/pkg/utils"
)

// Runner 是随服务启停的后台组件（Kafka 消费者、预留清扫器等）。
// Start 必须快速返回，长期工作放在自己的 goroutine 中。
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	Nacos            *nacos.Client       // 组装根建好的 Nacos 客户端，nil 表示不注册
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	Runners          []Runner            // 随服务生命周期启停的后台组件
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	logger.Init(info.ServiceName)

	// 1. 初始化核心组件
	// a. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}

	// b. Nacos 注册（可选，内存模式/单机部署时组装根不传客户端）
	namingClient := info.Nacos
	var registeredIP string
	if namingClient != nil {
		// 获取本机 IP 用于注册
		registeredIP, err = utils.GetOutboundIP()
		if err != nil {
			log.Fatalf("failed to get outbound IP address: %v", err)
		}

		// 执行服务注册
		if err := namingClient.RegisterServiceInstance(info.ServiceName, registeredIP, info.Port); err != nil {
			log.Fatalf("failed to register service with nacos: %v", err)
		}
	}

	// 2. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Printf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not listen on %s: %v\n", server.Addr, err)
		}
	}()

	// 3. 启动后台 Runner
	runnerCtx, cancelRunners := context.WithCancel(context.Background())
	for _, r := range info.Runners {
		if err := r.Start(runnerCtx); err != nil {
			log.Fatalf("failed to start background runner: %v", err)
		}
	}

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	log.Printf("Shutting down service %s...", info.ServiceName)

	// 创建一个有超时的 context，用于关停流程
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按后进先出的顺序执行清理操作
	// a. 停止后台 Runner（先停消费/清扫，再撤流量）
	cancelRunners()
	for i := len(info.Runners) - 1; i >= 0; i-- {
		info.Runners[i].Stop(ctx)
	}

	// b. 从 Nacos 注销服务
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, registeredIP, info.Port); err != nil {
			log.Printf("Error deregistering from Nacos: %v", err)
		} else {
			log.Printf("Service %s deregistered from Nacos.", info.ServiceName)
		}
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down tracer provider: %v", err)
	} else {
		log.Println("Tracer provider shut down.")
	}

	// d. 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down http server: %v", err)
	} else {
		log.Println("HTTP server shut down.")
	}

	log.Printf("Service %s gracefully shut down.", info.ServiceName)
}
