// Package mptcp implements the MPCB (C10) and ties together the token
// registry, path table, option codec, DSN mapping/reassembly, and
// scheduler into a runnable multipath engine.
package mptcp

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config contains the configuration for the MPTCP engine. The env struct
// tag contains the environment variable name and the default value if
// missing, or empty (if not ?=). All string arrays are comma-separated.
// Parsing follows the same reflect-driven approach the teacher's server
// config uses, trimmed to the field types this engine actually has.
type Config struct {
	// Whether MPTCP is enabled at all. When false, all new connections
	// fall back to plain TCP at SYN time (§6.5).
	Enabled bool `env:"MPTCP_ENABLED=true"`

	// When >1, selects the port-diversity path-construction mode (§4.2,
	// §6.5). 1 (the default) uses the multi-address mode.
	NDiffPorts int `env:"MPTCP_NDIFFPORTS=1"`

	// Whether to require the DSS checksum (§4.3, §6.5).
	Checksum bool `env:"MPTCP_CHECKSUM=false"`

	// Default MSS for meta-sends (§6.5).
	MSS int `env:"MPTCP_MSS=1400"`

	// Selects one of the registered pkg/sched scheduler functions (§4.6,
	// §6.5). Only "minsrtt" is registered today; the sysctl-style
	// indirection is kept regardless (Open Question 4 of §9).
	Scheduler string `env:"MPTCP_SCHEDULER=minsrtt"`

	// JoinTimeout bounds how long a pending-JOIN request may remain
	// half-open before being reaped (§5: "shares TCP's SYN timeout").
	JoinTimeout time.Duration `env:"MPTCP_JOIN_TIMEOUT=60s"`

	// CloseTimeout is parsed from the environment but not read anywhere:
	// MPCB.Close returns without waiting for outstanding data.
	CloseTimeout time.Duration `env:"MPTCP_CLOSE_TIMEOUT=10s"`

	// MaxAddrs is parsed from the environment but not applied: every
	// MPCB's local/remote address set is capped at the fixed
	// pathset.MaxAddrs (§4.2).
	MaxAddrs int `env:"MPTCP_MAX_ADDRS=0"`

	// --- ambient stack ---

	// The minimum log level (e.g., trace, debug, info, warn, error,
	// fatal).
	LogLevel zerolog.Level `env:"MPTCP_LOG_LEVEL=info"`

	// Whether to log to stdout.
	LogStdout bool `env:"MPTCP_LOG_STDOUT=true"`

	// Whether to use pretty console logs.
	LogStdoutPretty bool `env:"MPTCP_LOG_STDOUT_PRETTY=true"`

	// Secret token for accessing internal metrics and debug dump
	// endpoints. If empty, those endpoints are unauthenticated.
	MetricsSecret string `env:"MPTCP_METRICS_SECRET"`

	// The address to listen on for the master subflow's plain-TCP accept
	// loop (server side).
	Addr string `env:"MPTCP_ADDR=:4276"`

	// For sd-notify.
	NotifySocket string `env:"NOTIFY_SOCKET"`
}

// UnmarshalEnv unmarshals an array of environment variables into c, setting
// default values as appropriate. If incremental is true, default values
// will not be set for missing env vars, but only for empty ones.
func (c *Config) UnmarshalEnv(es []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range es {
		if strings.HasPrefix(e, "MPTCP_") || strings.HasPrefix(e, "NOTIFY_SOCKET=") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		env, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, val, _ := strings.Cut(env, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		switch cvf := cv.FieldByName(ctf.Name); cvf.Interface().(type) {
		case string:
			cvf.SetString(val)
		case int, int8, int16, int32, int64:
			if val == "" {
				cvf.SetInt(0)
			} else if v, err := strconv.ParseInt(val, 10, 64); err == nil {
				cvf.SetInt(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case bool:
			if val == "" {
				cvf.SetBool(false)
			} else if v, err := strconv.ParseBool(val); err == nil {
				cvf.SetBool(v)
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case zerolog.Level:
			if v, err := zerolog.ParseLevel(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		case time.Duration:
			if v, err := time.ParseDuration(val); err == nil {
				cvf.Set(reflect.ValueOf(v))
			} else {
				return fmt.Errorf("env %s (%T): parse %q: %w", key, cvf.Interface(), val, err)
			}
		default:
			return fmt.Errorf("unhandled type %T (%s)", cvf.Interface(), env)
		}
	}
	for key, val := range em {
		if val != "" {
			return fmt.Errorf("unknown environment variable %q", key)
		}
	}
	return nil
}
