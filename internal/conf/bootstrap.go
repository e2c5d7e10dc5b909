// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// defaultEnginePorts is the port layout of a local deployment, one engine per port.
var defaultEnginePorts = map[string]int32{
	"api_gateway":         8000,
	"login_register":      8001,
	"identity":            8002,
	"raw_data_store":      8003,
	"metadata":            8004,
	"processed_metadata":  8005,
	"vector_database":     8006,
	"neural_network":      8007,
	"anomaly_detection":   8008,
	"chunks":              8010,
	"policy_fetching":     8011,
	"json_user_info":      8012,
	"analytics_warehouse": 8013,
	"dashboard_bff":       8014,
	"eligibility_rules":   8015,
	"deadline_monitoring": 8016,
	"simulation":          8017,
	"gov_data_sync":       8018,
	"trust_scoring":       8019,
	"speech_interface":    8020,
	"doc_understanding":   8021,
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with CIVICGATE_.
//
// Configuration priority: Environment variables > Config file > Defaults
//
// Required environment variables:
//   - JWT_SECRET or CIVICGATE_AUTH_JWT_SECRET: HS256 secret for protected routes
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CIVICGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 兼容不带前缀的环境变量
	_ = v.BindEnv("auth.jwt.secret", "JWT_SECRET", "CIVICGATE_AUTH_JWT_SECRET")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "CIVICGATE_DATA_REDIS_ADDR")
	_ = v.BindEnv("engines.host", "ENGINE_HOST", "CIVICGATE_ENGINES_HOST")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				Password:     v.GetString("data.redis.password"),
				Db:           v.GetInt32("data.redis.db"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Engines: loadEngines(v),
		CircuitBreaker: &CircuitBreaker{
			FailureThreshold: v.GetInt32("circuit_breaker.failure_threshold"),
			RecoveryTimeout:  durationpb.New(v.GetDuration("circuit_breaker.recovery_timeout")),
		},
		Audit: &Audit{
			QueueSize:    v.GetInt32("audit.queue_size"),
			Workers:      v.GetInt32("audit.workers"),
			JournalSize:  v.GetInt32("audit.journal_size"),
			WriteTimeout: durationpb.New(v.GetDuration("audit.write_timeout")),
		},
		RateLimit: &RateLimit{
			Enabled:          v.GetBool("rate_limit.enabled"),
			PerIpRpm:         v.GetInt32("rate_limit.per_ip_rpm"),
			BurstPerSecond:   v.GetInt32("rate_limit.burst_per_second"),
			Store:            strings.ToLower(v.GetString("rate_limit.store")),
			MemoryMaxClients: v.GetInt32("rate_limit.memory_max_clients"),
		},
		Cors: &Cors{
			Origins: v.GetStringSlice("cors.origins"),
		},
		Auth: &Auth{
			Jwt: &Auth_JWT{
				Secret: v.GetString("auth.jwt.secret"),
			},
		},
		Health: &Health{
			SweepCron:    v.GetString("health.sweep_cron"),
			ProbeTimeout: durationpb.New(v.GetDuration("health.probe_timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// loadEngines merges the port table with explicit URL overrides.
// engines.urls.<key> may also come from CIVICGATE_ENGINES_URLS_<KEY>.
func loadEngines(v *viper.Viper) *Engines {
	e := &Engines{
		Host:           strings.TrimRight(v.GetString("engines.host"), "/"),
		Ports:          make(map[string]int32),
		Urls:           make(map[string]string),
		ProxyUrl:       v.GetString("engines.proxy_url"),
		DefaultTimeout: durationpb.New(v.GetDuration("engines.default_timeout")),
		ProxyTimeout:   durationpb.New(v.GetDuration("engines.proxy_timeout")),
	}

	for key := range v.GetStringMap("engines.ports") {
		e.Ports[key] = v.GetInt32("engines.ports." + key)
	}

	keys := make(map[string]struct{}, len(e.Ports))
	for key := range e.Ports {
		keys[key] = struct{}{}
	}
	for key := range v.GetStringMapString("engines.urls") {
		keys[key] = struct{}{}
	}
	for key := range keys {
		if u := v.GetString("engines.urls." + key); u != "" {
			e.Urls[key] = strings.TrimRight(u, "/")
		}
	}

	return e
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	// 流水线最长约 30s+，留足余量
	v.SetDefault("server.http.timeout", 2*time.Minute)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", 30*time.Second)

	// Redis is optional; an empty addr selects the in-memory stores
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.db", 0)
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("engines.host", "http://localhost")
	ports := make(map[string]interface{}, len(defaultEnginePorts))
	for key, port := range defaultEnginePorts {
		ports[key] = port
	}
	v.SetDefault("engines.ports", ports)
	v.SetDefault("engines.default_timeout", 15*time.Second)
	v.SetDefault("engines.proxy_timeout", 30*time.Second)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.recovery_timeout", 30*time.Second)

	v.SetDefault("audit.queue_size", 1000)
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.journal_size", 200)
	v.SetDefault("audit.write_timeout", 15*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_ip_rpm", 100)
	v.SetDefault("rate_limit.burst_per_second", 10)
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.memory_max_clients", 10000)

	v.SetDefault("cors.origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://localhost:8000",
	})

	// 秒 分 时 日 月 周
	v.SetDefault("health.sweep_cron", "0 */1 * * * *")
	v.SetDefault("health.probe_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// EndpointURLs resolves every configured engine key to its base URL.
func (e *Engines) EndpointURLs() map[string]string {
	out := make(map[string]string, len(e.Ports)+len(e.Urls))
	for key, port := range e.Ports {
		out[key] = fmt.Sprintf("%s:%d", e.Host, port)
	}
	for key, u := range e.Urls {
		out[key] = u
	}
	return out
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing every offending field.
func Validate(bc *Bootstrap) error {
	var problems []string

	if bc.Auth == nil || bc.Auth.Jwt == nil || bc.Auth.Jwt.Secret == "" {
		problems = append(problems, "auth.jwt.secret (JWT_SECRET) is required")
	}

	if bc.CircuitBreaker == nil || bc.CircuitBreaker.FailureThreshold < 1 {
		problems = append(problems, "circuit_breaker.failure_threshold must be >= 1")
	}
	if bc.CircuitBreaker == nil || bc.CircuitBreaker.RecoveryTimeout.AsDuration() <= 0 {
		problems = append(problems, "circuit_breaker.recovery_timeout must be > 0")
	}

	if bc.Engines == nil {
		problems = append(problems, "engines is required")
	} else {
		endpoints := bc.Engines.EndpointURLs()
		if len(endpoints) == 0 {
			problems = append(problems, "engines: no engine endpoints configured")
		}
		keys := make([]string, 0, len(endpoints))
		for key := range endpoints {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			u, err := url.Parse(endpoints[key])
			if err != nil || u.Scheme == "" || u.Host == "" {
				problems = append(problems, fmt.Sprintf("engines.%s: invalid url %q", key, endpoints[key]))
			}
		}
	}

	if bc.RateLimit != nil {
		switch bc.RateLimit.Store {
		case "redis", "memory":
		default:
			problems = append(problems, fmt.Sprintf("rate_limit.store must be redis or memory, got %q", bc.RateLimit.Store))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return nil
}
