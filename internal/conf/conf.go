package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration of the gateway.
type Bootstrap struct {
	Server         *Server
	Data           *Data
	Engines        *Engines
	CircuitBreaker *CircuitBreaker
	Audit          *Audit
	RateLimit      *RateLimit
	Cors           *Cors
	Auth           *Auth
	Health         *Health
	Log            *Log
}

// Server holds listener settings for both transports.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds the optional Redis backend used by the rate limiter and event journal.
type Data struct {
	Redis *Data_Redis
}

type Data_Redis struct {
	Network      string
	Addr         string
	Password     string
	Db           int32
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Engines describes where each downstream engine lives.
// Urls overrides the Host+Ports combination for individual keys.
type Engines struct {
	Host           string
	Ports          map[string]int32
	Urls           map[string]string
	ProxyUrl       string
	DefaultTimeout *durationpb.Duration
	ProxyTimeout   *durationpb.Duration
}

type CircuitBreaker struct {
	FailureThreshold int32
	RecoveryTimeout  *durationpb.Duration
}

type Audit struct {
	QueueSize    int32
	Workers      int32
	JournalSize  int32
	WriteTimeout *durationpb.Duration
}

type RateLimit struct {
	Enabled          bool
	PerIpRpm         int32
	BurstPerSecond   int32
	Store            string
	MemoryMaxClients int32
}

type Cors struct {
	Origins []string
}

type Auth struct {
	Jwt *Auth_JWT
}

type Auth_JWT struct {
	Secret string
}

type Health struct {
	SweepCron    string
	ProbeTimeout *durationpb.Duration
}

type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
