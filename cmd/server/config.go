package main

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/email"
	"github.com/habitkeep/habitkeep/internal/krypto"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// storeConfig selects and configures the storage backend.
type storeConfig struct {
	driver     string
	sqliteFile string
	jsonDir    string
}

// sessionConfig is the configuration for session cookies.
type sessionConfig struct {
	hashKey      krypto.Key
	blockKey     krypto.Key
	secureCookie bool
	idleTimeout  time.Duration
}

// emailConfig selects and configures the email sender.
type emailConfig struct {
	driver     string
	from       email.Address
	brevoURL   *url.URL
	brevoKey   krypto.Secret
	senderName string
}

// config is the configuration for the server command.
type config struct {
	http      httpConfig
	store     storeConfig
	session   sessionConfig
	email     emailConfig
	auth      auth.ServiceConfig
	masterKey krypto.Key
}

// defaultConfig returns a config with sane default values.
// The encryption and session keys have no default, they are required.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
		},
		store: storeConfig{
			driver:     "sqlite",
			sqliteFile: "habitkeep.db",
			jsonDir:    "data",
		},
		session: sessionConfig{
			secureCookie: true,
			idleTimeout:  time.Hour,
		},
		email: emailConfig{
			driver:     "log",
			from:       "no-reply@habitkeep.app",
			brevoURL: &url.URL{
				Scheme: "https",
				Host:   "api.brevo.com",
				Path:   "/v3/smtp/email",
			},
			senderName: "HabitKeep",
		},
		auth: auth.DefaultConfig(),
	}
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"STORE_DRIVER": func(v string, c *config) error {
		if v != "sqlite" && v != "jsonfile" {
			return fmt.Errorf("unknown store driver %q", v)
		}
		c.store.driver = v
		return nil
	},
	"SQLITE_FILE": func(v string, c *config) error {
		c.store.sqliteFile = v
		return nil
	},
	"JSONFILE_DIR": func(v string, c *config) error {
		c.store.jsonDir = v
		return nil
	},
	"MASTER_KEY": func(v string, c *config) error {
		return confKey(v, &c.masterKey)
	},
	"SESSION_HASH_KEY": func(v string, c *config) error {
		return confKey(v, &c.session.hashKey)
	},
	"SESSION_BLOCK_KEY": func(v string, c *config) error {
		return confKey(v, &c.session.blockKey)
	},
	"SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.session.secureCookie)
	},
	"SESSION_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.session.idleTimeout, time.Minute, math.MaxInt64)
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		if v != "log" && v != "brevo" {
			return fmt.Errorf("unknown email driver %q", v)
		}
		c.email.driver = v
		return nil
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
	"BREVO_API_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}
		c.email.brevoURL = u
		return nil
	},
	"BREVO_API_KEY": func(v string, c *config) error {
		c.email.brevoKey = krypto.NewSecret(v)
		return nil
	},
	"BREVO_SENDER_NAME": func(v string, c *config) error {
		c.email.senderName = v
		return nil
	},
	"AUTH_WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.WorkerTimeout, time.Second, math.MaxInt64)
	},
	"AUTH_CODE_TTL": func(v string, c *config) error {
		return confDuration(v, &c.auth.CodeTTL, time.Minute, math.MaxInt64)
	},
	"AUTH_PENDING_TTL": func(v string, c *config) error {
		return confDuration(v, &c.auth.PendingTTL, time.Minute, math.MaxInt64)
	},
	"AUTH_RESEND_COOLDOWN": func(v string, c *config) error {
		return confDuration(v, &c.auth.ResendCooldown, 0, math.MaxInt64)
	},
	"AUTH_LOGIN_LOCKOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.LoginLockout, time.Minute, math.MaxInt64)
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				return c, fmt.Errorf("invalid env variable %s: %w", key, err)
			}
		}
	}

	if len(c.masterKey.SecretValue()) == 0 {
		return c, fmt.Errorf("MASTER_KEY is required")
	}

	if len(c.session.hashKey.SecretValue()) == 0 {
		return c, fmt.Errorf("SESSION_HASH_KEY is required")
	}

	if c.email.driver == "brevo" && len(c.email.brevoKey.SecretValue()) == 0 {
		return c, fmt.Errorf("BREVO_API_KEY is required when EMAIL_DRIVER=brevo")
	}

	return c, nil
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	key, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = key

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}
