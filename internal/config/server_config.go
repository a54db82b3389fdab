package config

import (
	"time"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/util"
)

// Echo holds HTTP listener settings.
type Echo struct {
	ListenAddress string `json:"listen_address"`
}

// Relays holds the default relay set used for marketplace queries and for
// publishing gift wraps. NWC relays always come from the connection URI,
// never from here.
type Relays struct {
	URLs           []string      `json:"urls"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	PublishTimeout time.Duration `json:"publish_timeout"`
}

// Redis holds rental session store settings.
type Redis struct {
	Address    string        `json:"address"`
	Password   string        `json:"-"`
	DB         int           `json:"db"`
	SessionTTL time.Duration `json:"session_ttl"`
}

// Payments holds invoice watch settings.
type Payments struct {
	PollInterval time.Duration `json:"poll_interval"`
	MaxPolls     int           `json:"max_polls"`
}

// Server is the root configuration, assembled from the environment.
type Server struct {
	Echo     Echo     `json:"echo"`
	Relays   Relays   `json:"relays"`
	Redis    Redis    `json:"redis"`
	Payments Payments `json:"payments"`
}

// DefaultServerConfigFromEnv returns the server config with every field
// either taken from the environment or set to its default.
func DefaultServerConfigFromEnv() Server {
	return Server{
		Echo: Echo{
			ListenAddress: util.GetEnv("LOCKERS_SERVER_LISTEN_ADDRESS", ":8080"),
		},
		Relays: Relays{
			URLs: util.GetEnvAsStringArr("LOCKERS_RELAY_URLS", []string{
				"wss://relay.damus.io",
				"wss://relay.primal.net",
			}),
			ConnectTimeout: time.Duration(util.GetEnvAsInt("LOCKERS_RELAY_CONNECT_TIMEOUT_SEC", 10)) * time.Second,
			PublishTimeout: time.Duration(util.GetEnvAsInt("LOCKERS_RELAY_PUBLISH_TIMEOUT_SEC", 10)) * time.Second,
		},
		Redis: Redis{
			Address:    util.GetEnv("LOCKERS_REDIS_ADDRESS", "127.0.0.1:6379"),
			Password:   util.GetEnv("LOCKERS_REDIS_PASSWORD", ""),
			DB:         util.GetEnvAsInt("LOCKERS_REDIS_DB", 0),
			SessionTTL: time.Duration(util.GetEnvAsInt("LOCKERS_REDIS_SESSION_TTL_MIN", 60)) * time.Minute,
		},
		Payments: Payments{
			PollInterval: time.Duration(util.GetEnvAsInt("LOCKERS_PAYMENT_POLL_INTERVAL_SEC", 3)) * time.Second,
			MaxPolls:     util.GetEnvAsInt("LOCKERS_PAYMENT_MAX_POLLS", 60),
		},
	}
}
