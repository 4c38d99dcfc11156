// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/inventory.yaml"

// Config 是库存服务的完整配置，对应 configs/inventory.yaml。
type Config struct {
	App         AppConfig         `yaml:"app"`
	Infra       InfraConfig       `yaml:"infra"`
	Reservation ReservationConfig `yaml:"reservation"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// EmbeddedSweeper 为 true 时，inventory-service 进程内部也会运行过期清理任务
	EmbeddedSweeper bool `yaml:"embedded_sweeper"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type MySQLConfig struct {
	DSN string `yaml:"dsn"`
	// Isolation 事务隔离级别: read_committed / repeatable_read / serializable / default
	Isolation       string        `yaml:"isolation"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	PaymentTopic string   `yaml:"payment_topic"`
	AlertTopic   string   `yaml:"alert_topic"`
	GroupID      string   `yaml:"group_id"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// ReservationConfig 是库存预占相关的业务参数。
type ReservationConfig struct {
	// TTL 预占记录的有效期，超时未确认的预占会被清理任务置为 EXPIRED
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// LinePolicy 是可选的 CEL 表达式，例如 "quantity <= 10"，为空则不校验
	LinePolicy string `yaml:"line_policy"`
	// DedupeTTL 支付结果事件去重键在 Redis 中的保留时间
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// Default 返回所有字段都带默认值的配置。
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:            "inventory-service",
			Port:            8082,
			LogLevel:        "info",
			EmbeddedSweeper: true,
		},
		Infra: InfraConfig{
			MySQL: MySQLConfig{
				DSN:             "root:root@tcp(localhost:3306)/nexus_inventory?charset=utf8mb4&parseTime=true&loc=UTC",
				Isolation:       "read_committed",
				MaxOpenConns:    50,
				MaxIdleConns:    10,
				ConnMaxLifetime: 30 * time.Minute,
				AutoMigrate:     true,
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:      []string{"localhost:9092"},
				PaymentTopic: "payment-results",
				AlertTopic:   "inventory-alerts",
				GroupID:      "inventory-payment-consumer-group",
			},
			Jaeger: JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Zookeeper: ZookeeperConfig{
				SessionTimeout: 10 * time.Second,
			},
			Nacos: NacosConfig{Group: "DEFAULT_GROUP"},
		},
		Reservation: ReservationConfig{
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
			DedupeTTL:     24 * time.Hour,
		},
	}
}

// Load 读取 YAML 配置文件，再用环境变量覆盖。
// path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验业务上不能缺省的参数。
func (c *Config) Validate() error {
	if c.Reservation.TTL <= 0 {
		return errors.Errorf("reservation.ttl must be positive, got %s", c.Reservation.TTL)
	}
	if c.Reservation.SweepInterval <= 0 {
		return errors.Errorf("reservation.sweep_interval must be positive, got %s", c.Reservation.SweepInterval)
	}
	if c.Infra.MySQL.DSN == "" {
		return errors.New("infra.mysql.dsn is required")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		cfg.Infra.Zookeeper.Servers = splitCSV(v)
	}
	if v, ok := os.LookupEnv("RESERVATION_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "invalid RESERVATION_TTL %q", v)
		}
		cfg.Reservation.TTL = ttl
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

var currentConfig atomic.Pointer[Config]

// Init 从 CONFIG_PATH（默认 configs/inventory.yaml）加载配置并设置为全局配置。
func Init() (*Config, error) {
	path := getEnv("CONFIG_PATH", defaultConfigPath)
	if _, err := os.Stat(path); err != nil && os.Getenv("CONFIG_PATH") == "" {
		// 未显式指定且默认文件不存在时，退化为纯默认值 + 环境变量
		path = ""
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	currentConfig.Store(cfg)
	return cfg, nil
}

// GetCurrentConfig 返回当前生效的配置；Init 之前返回默认配置。
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return Default()
}
