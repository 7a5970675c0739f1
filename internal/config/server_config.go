package config

import (
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/util"
)

// NodeServer 本节点身份
type NodeServer struct {
	Wallet string
	// PrivateKey 十六进制 secp256k1 私钥，用作 libp2p 身份
	PrivateKey string `json:"-"`
	// NetworkConfig Party 成员描述文件
	NetworkConfig     string
	HeartbeatInterval time.Duration
}

// TransportServer 节点间通信
type TransportServer struct {
	// Type libp2p 或 grpc
	Type          string
	ListenAddrs   []string
	Bootnodes     []string
	GRPCPort      int
	TLSEnabled    bool
	TLSCertFile   string
	TLSKeyFile    string
	TLSCACertFile string
	CallTimeout   time.Duration
}

// KeyServer 密钥生成与恢复的时间参数
type KeyServer struct {
	Timeout              time.Duration
	CacheTTL             time.Duration
	CacheSweep           time.Duration
	StatusPollInterval   time.Duration
	RecoveryInitialDelay time.Duration
	FindOthersInterval   time.Duration
	FindOthersTries      int
}

// StorageServer 密钥配置存储
type StorageServer struct {
	// Backend file 或 redis
	Backend    string
	Path       string
	Passphrase string `json:"-"`
}

// LeaderServer 领导者选举
type LeaderServer struct {
	// Backend static 或 redis
	Backend  string
	Wallet   string
	LeaseTTL time.Duration
}

// RedisServer Redis 连接
type RedisServer struct {
	Endpoint string
	Password string `json:"-"`
	DB       int
}

// MetricsServer Prometheus 指标
type MetricsServer struct {
	Addr string
}

// LoggerServer 日志
type LoggerServer struct {
	Level       string
	PrettyPrint bool
}

// Server 节点配置
type Server struct {
	Node      NodeServer
	Transport TransportServer
	Key       KeyServer
	Storage   StorageServer
	Leader    LeaderServer
	Redis     RedisServer
	Metrics   MetricsServer
	Logger    LoggerServer
}

// DefaultServiceConfigFromEnv 从环境变量读取配置
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Node: NodeServer{
			Wallet:            util.GetEnv("MPC_NODE_WALLET", ""),
			PrivateKey:        util.GetEnv("MPC_NODE_PRIVATE_KEY", ""),
			NetworkConfig:     util.GetEnv("MPC_NETWORK_CONFIG", "/app/config/net.yaml"),
			HeartbeatInterval: util.GetEnvAsDuration("MPC_HEARTBEAT_INTERVAL", 30*time.Second),
		},
		Transport: TransportServer{
			Type:          util.GetEnv("MPC_TRANSPORT", "libp2p"),
			ListenAddrs:   util.GetEnvAsStringArr("MPC_LISTEN_ADDRS", []string{"/ip4/0.0.0.0/tcp/4000"}),
			Bootnodes:     util.GetEnvAsStringArr("MPC_BOOTNODES", nil),
			GRPCPort:      util.GetEnvAsInt("MPC_GRPC_PORT", 9090),
			TLSEnabled:    util.GetEnvAsBool("MPC_TLS_ENABLED", false),
			TLSCertFile:   util.GetEnv("MPC_TLS_CERT_FILE", "/app/certs/node.crt"),
			TLSKeyFile:    util.GetEnv("MPC_TLS_KEY_FILE", "/app/certs/node.key"),
			TLSCACertFile: util.GetEnv("MPC_TLS_CA_CERT_FILE", "/app/certs/ca.crt"),
			CallTimeout:   util.GetEnvAsDuration("MPC_CALL_TIMEOUT", 15*time.Second),
		},
		Key: KeyServer{
			Timeout:              util.GetEnvAsDuration("MPC_KEY_TIMEOUT", 15*time.Second),
			CacheTTL:             util.GetEnvAsDuration("MPC_KEY_CACHE_TTL", 6*time.Minute),
			CacheSweep:           util.GetEnvAsDuration("MPC_KEY_CACHE_SWEEP", 60*time.Second),
			StatusPollInterval:   util.GetEnvAsDuration("MPC_STATUS_POLL_INTERVAL", 5*time.Second),
			RecoveryInitialDelay: util.GetEnvAsDuration("MPC_RECOVERY_INITIAL_DELAY", 6*time.Second),
			FindOthersInterval:   util.GetEnvAsDuration("MPC_FIND_OTHERS_INTERVAL", 5*time.Second),
			FindOthersTries:      util.GetEnvAsInt("MPC_FIND_OTHERS_TRIES", 3),
		},
		Storage: StorageServer{
			Backend:    util.GetEnv("MPC_KEY_CONFIG_BACKEND", "file"),
			Path:       util.GetEnv("MPC_KEY_CONFIG_PATH", "/app/data/tss.conf.json"),
			Passphrase: util.GetEnv("MPC_KEY_CONFIG_PASSPHRASE", ""),
		},
		Leader: LeaderServer{
			Backend:  util.GetEnv("MPC_LEADER_BACKEND", "static"),
			Wallet:   util.GetEnv("MPC_LEADER_WALLET", ""),
			LeaseTTL: util.GetEnvAsDuration("MPC_LEADER_LEASE_TTL", 30*time.Second),
		},
		Redis: RedisServer{
			Endpoint: util.GetEnv("MPC_REDIS_ENDPOINT", "localhost:6379"),
			Password: util.GetEnv("MPC_REDIS_PASSWORD", ""),
			DB:       util.GetEnvAsInt("MPC_REDIS_DB", 0),
		},
		Metrics: MetricsServer{
			Addr: util.GetEnv("MPC_METRICS_ADDR", ":9100"),
		},
		Logger: LoggerServer{
			Level:       util.GetEnv("MPC_LOG_LEVEL", "info"),
			PrettyPrint: util.GetEnvAsBool("MPC_LOG_PRETTY", false),
		},
	}
}
