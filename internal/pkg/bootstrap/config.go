// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 聚合了服务运行所需的全部配置。
// 加载优先级：环境变量 > 配置文件(CONFIG_FILE) > 内置默认值。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	// ReservationTTL 是购物车预留的存活时长，到期未结算的预留由清扫器释放。
	ReservationTTL time.Duration `yaml:"reservationTtl"`
	// CartTTL 是购物车本身的存活时长。
	CartTTL time.Duration `yaml:"cartTtl"`
	// SweepInterval 是预留清扫器的轮询间隔。
	SweepInterval time.Duration `yaml:"sweepInterval"`
	// LockMode 选择 SKU 锁的实现: "local"(进程内) 或 "zookeeper"(多实例部署)。
	LockMode string `yaml:"lockMode"`
	// MemoryMode 本地开发模式：用内存实现替代 MySQL/Redis，并关闭 Nacos 注册。
	MemoryMode bool `yaml:"memoryMode"`
	// DefaultShippingCost 是兜底运费，所有运费规则都未命中时使用。
	DefaultShippingCost string `yaml:"defaultShippingCost"`
	// ShippingRules 按顺序求值，第一条命中的规则决定运费。
	ShippingRules []ShippingRule `yaml:"shippingRules"`
}

// ShippingRule 是一条 CEL 运费规则。
// When 是一个返回布尔值的 CEL 表达式，可引用变量 subtotal/itemCount/destination。
type ShippingRule struct {
	Name string `yaml:"name"`
	When string `yaml:"when"`
	Cost string `yaml:"cost"`
}

type InfraConfig struct {
	Mysql     MysqlConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type MysqlConfig struct {
	Addr     string `yaml:"addr"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type KafkaConfig struct {
	// Brokers 为逗号分隔的 broker 地址列表。
	Brokers string `yaml:"brokers"`
}

// BrokerList 把逗号分隔的 broker 配置拆分为切片。
func (k KafkaConfig) BrokerList() []string {
	return strings.Split(k.Brokers, ",")
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type ZookeeperConfig struct {
	// Servers 为逗号分隔的 ZooKeeper 地址列表。
	Servers string `yaml:"servers"`
}

// ServerList 把逗号分隔的 ZooKeeper 配置拆分为切片。
func (z ZookeeperConfig) ServerList() []string {
	return strings.Split(z.Servers, ",")
}

var currentConfig *Config

// Init 加载配置，必须在 StartService 之前调用一次。
func Init() {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("FATAL: cannot read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("FATAL: cannot parse config file %s: %v", path, err)
		}
		log.Printf("Config loaded from %s", path)
	}

	applyEnvOverrides(cfg)

	// 内存模式下不存在可注册的外部依赖，强制关闭 Nacos
	if cfg.App.MemoryMode && cfg.Infra.Nacos.Enabled {
		log.Println("Memory mode enabled, disabling Nacos registration.")
		cfg.Infra.Nacos.Enabled = false
	}

	currentConfig = cfg
}

// GetCurrentConfig 返回已加载的配置。未显式 Init 时按默认值初始化。
func GetCurrentConfig() *Config {
	if currentConfig == nil {
		Init()
	}
	return currentConfig
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ReservationTTL:      15 * time.Minute,
			CartTTL:             7 * 24 * time.Hour,
			SweepInterval:       time.Minute,
			LockMode:            "local",
			DefaultShippingCost: "10.00",
		},
		Infra: InfraConfig{
			Mysql: MysqlConfig{
				Addr:     "localhost:3306",
				User:     "root",
				Password: "",
				Database: "atelier",
			},
			Redis:  RedisConfig{Addr: "localhost:6379"},
			Kafka:  KafkaConfig{Brokers: "localhost:9092"},
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Nacos: NacosConfig{
				Enabled:     true,
				ServerAddrs: "localhost:8848",
				Namespace:   "",
				Group:       "DEFAULT_GROUP",
			},
			Zookeeper: ZookeeperConfig{Servers: "localhost:2181"},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.App.ReservationTTL = getEnvDuration("RESERVATION_TTL", cfg.App.ReservationTTL)
	cfg.App.CartTTL = getEnvDuration("CART_TTL", cfg.App.CartTTL)
	cfg.App.SweepInterval = getEnvDuration("SWEEP_INTERVAL", cfg.App.SweepInterval)
	cfg.App.LockMode = getEnv("LOCK_MODE", cfg.App.LockMode)
	cfg.App.MemoryMode = getEnvBool("MEMORY_MODE", cfg.App.MemoryMode)
	cfg.App.DefaultShippingCost = getEnv("DEFAULT_SHIPPING_COST", cfg.App.DefaultShippingCost)

	cfg.Infra.Mysql.Addr = getEnv("MYSQL_ADDR", cfg.Infra.Mysql.Addr)
	cfg.Infra.Mysql.User = getEnv("MYSQL_USER", cfg.Infra.Mysql.User)
	cfg.Infra.Mysql.Password = getEnv("MYSQL_PASSWORD", cfg.Infra.Mysql.Password)
	cfg.Infra.Mysql.Database = getEnv("MYSQL_DATABASE", cfg.Infra.Mysql.Database)

	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Kafka.Brokers = getEnv("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	cfg.Infra.Nacos.Enabled = getEnvBool("NACOS_ENABLED", cfg.Infra.Nacos.Enabled)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)

	cfg.Infra.Zookeeper.Servers = getEnv("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("WARN: invalid duration in %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
