package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/facebookgo/flagenv"
	"github.com/layer-3/keyauth/adapters/registry"
	"github.com/layer-3/keyauth/adapters/store"
	"github.com/layer-3/keyauth/adapters/tokenizer"
	"github.com/layer-3/keyauth/service"
)

const (
	DefaultRPCURL = "http://127.0.0.1:7545"
	DefaultPort   = 3001
)

// Config is the runtime configuration of the keyauth server
type Config struct {
	RPCURL          string
	RegistryAddress common.Address
	JWTSecret       []byte
	Port            int
	RedisURL        string
	LogLevel        string

	NonceTTL      time.Duration
	SessionTTL    time.Duration
	OracleTimeout time.Duration
	EventsTimeout time.Duration
	EventWindow   uint64

	AllowedOrigins []string
	TrustedProxies []string
}

// Addr is the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load parses args, then fills every flag not given on the command line from
// the environment (flag "rpc-url" reads RPC_URL and so on).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("keyauth", flag.ContinueOnError)

	var (
		rpcURL         = fs.String("rpc-url", DefaultRPCURL, "JSON-RPC endpoint of the chain hosting the key registry")
		registryAddr   = fs.String("registry-addr", "", "address of the key registry contract")
		jwtSecret      = fs.String("jwt-secret", "", "HMAC secret used to sign session tokens")
		port           = fs.Int("port", DefaultPort, "HTTP listen port")
		redisURL       = fs.String("redis-url", "", "if set, store nonces in Redis and publish events to Redis streams")
		logLevel       = fs.String("log-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
		nonceTTL       = fs.Duration("nonce-ttl", store.DefaultNonceTTL, "how long an issued challenge stays valid")
		sessionTTL     = fs.Duration("session-ttl", tokenizer.DefaultSessionTTL, "session token lifetime")
		oracleTimeout  = fs.Duration("oracle-timeout", service.DefaultOracleTimeout, "timeout for the isKey registry call")
		eventsTimeout  = fs.Duration("events-timeout", service.DefaultEventsTimeout, "timeout for the registry event scan")
		eventWindow    = fs.Uint64("event-window", registry.DefaultEventWindow, "number of trailing blocks scanned by /events")
		allowedOrigins = fs.String("allowed-origins", "localhost", "comma separated CORS origins; \"localhost\" matches any http://localhost:<port>")
		trustedProxies = fs.String("trusted-proxies", "", "comma separated proxy IPs or CIDRs whose X-Forwarded-For is trusted; empty trusts none")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := flagenv.ParseSet("", fs); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCURL:         strings.TrimSpace(*rpcURL),
		JWTSecret:      []byte(strings.TrimSpace(*jwtSecret)),
		Port:           *port,
		RedisURL:       strings.TrimSpace(*redisURL),
		LogLevel:       *logLevel,
		NonceTTL:       *nonceTTL,
		SessionTTL:     *sessionTTL,
		OracleTimeout:  *oracleTimeout,
		EventsTimeout:  *eventsTimeout,
		EventWindow:    *eventWindow,
		AllowedOrigins: splitList(*allowedOrigins),
		TrustedProxies: splitList(*trustedProxies),
	}

	var errs []error
	addr := strings.TrimSpace(*registryAddr)
	if !common.IsHexAddress(addr) {
		errs = append(errs, fmt.Errorf("REGISTRY_ADDR %q is not a valid address", addr))
	} else {
		cfg.RegistryAddress = common.HexToAddress(addr)
	}
	if len(cfg.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	if cfg.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL must be set"))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", cfg.Port))
	}
	for name, d := range map[string]time.Duration{
		"NONCE_TTL":      cfg.NonceTTL,
		"SESSION_TTL":    cfg.SessionTTL,
		"ORACLE_TIMEOUT": cfg.OracleTimeout,
		"EVENTS_TIMEOUT": cfg.EventsTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
