package config

import (
	"fmt"
	"strings"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// DaemonConfig describes one monero-like wallet daemon the listener watches.
// The map key in ListenerConfig.Daemons is the currency code (e.g. "xmr").
type DaemonConfig struct {
	WalletRPCURL string `mapstructure:"wallet_rpc_url"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
}

type ListenerConfig struct {
	Daemons map[string]DaemonConfig `mapstructure:"daemons"`
	// HealthCheckInterval is the wallet availability probe interval in seconds.
	HealthCheckInterval int `mapstructure:"health_check_interval"`
	// SignalBuffer is the capacity of the scanner's inbound signal queue.
	SignalBuffer int `mapstructure:"signal_buffer"`
	// LockTTL is the per-invoice reconcile lock TTL in seconds.
	LockTTL int `mapstructure:"lock_ttl"`
}

// Currencies returns the configured currency codes, normalized to upper case.
func (l *ListenerConfig) Currencies() []string {
	codes := make([]string, 0, len(l.Daemons))
	for code := range l.Daemons {
		codes = append(codes, strings.ToUpper(code))
	}
	return codes
}

// Daemon returns the daemon config for a currency code, case-insensitively.
func (l *ListenerConfig) Daemon(currency string) (DaemonConfig, bool) {
	for code, cfg := range l.Daemons {
		if strings.EqualFold(code, currency) {
			return cfg, true
		}
	}
	return DaemonConfig{}, false
}
