// Package config implements client/server/pool configuration records
// plus TOML file loading and TLS/mTLS transport validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SecurityMode gates how strict TLS validation is: "development" allows a
// plaintext or unverified transport, "production" requires mutual TLS
// with certificate verification enabled.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

var (
	ErrInvalidSecurityMode = errors.New("config: invalid security mode")
	ErrTLSRequired         = errors.New("config: tls required")
	ErrMTLSRequired        = errors.New("config: mtls required")
	ErrTLSCertFileRequired = errors.New("config: tls cert file required")
	ErrTLSKeyFileRequired  = errors.New("config: tls key file required")
	ErrTLSCAFileRequired   = errors.New("config: tls ca file required")
	ErrInsecureSkipNotAllowed = errors.New("config: insecure skip verify not allowed in production")
)

// NormalizeSecurityMode trims and lowercases mode, defaulting to
// development when empty.
func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	trimmed := strings.ToLower(strings.TrimSpace(string(mode)))
	if trimmed == "" {
		return SecurityModeDevelopment
	}
	return SecurityMode(trimmed)
}

// TLSConfig configures a TLS or mTLS transport (§4.4).
type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	RequireClientCert  bool   `toml:"require_client_cert"`
}

// ClientConfig is the client config record from §4.11.
type ClientConfig struct {
	Host          string        `toml:"host"`
	Port          uint16        `toml:"port"`
	SecurityMode  SecurityMode  `toml:"security_mode"`
	TLS           TLSConfig     `toml:"tls"`
	PingInterval  time.Duration `toml:"ping_interval"`
	SocketTimeout time.Duration `toml:"socket_timeout"`
	UseAppCipher  bool          `toml:"use_app_cipher"`
}

func (c ClientConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that TLS/mTLS settings are consistent with the
// configured SecurityMode.
func (c ClientConfig) Validate() error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}

	if mode == SecurityModeProduction {
		if !c.TLS.Enabled {
			return ErrTLSRequired
		}
		if !c.TLS.Mutual {
			return ErrMTLSRequired
		}
		if c.TLS.InsecureSkipVerify {
			return ErrInsecureSkipNotAllowed
		}
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CAFile) == "" && !c.TLS.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.TLS.Mutual {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	return nil
}

// ServerConfig is the server config record from §4.11.
type ServerConfig struct {
	Host          string        `toml:"host"`
	Port          uint16        `toml:"port"`
	Workers       int           `toml:"workers"`
	SecurityMode  SecurityMode  `toml:"security_mode"`
	TLS           TLSConfig     `toml:"tls"`
	SocketTimeout time.Duration `toml:"socket_timeout"`
	UseAppCipher  bool          `toml:"use_app_cipher"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks that TLS/mTLS settings are consistent with the
// configured SecurityMode.
func (c ServerConfig) Validate() error {
	mode := NormalizeSecurityMode(c.SecurityMode)
	switch mode {
	case SecurityModeDevelopment, SecurityModeProduction:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSecurityMode, c.SecurityMode)
	}

	if mode == SecurityModeProduction {
		if !c.TLS.Enabled {
			return ErrTLSRequired
		}
		if !c.TLS.Mutual {
			return ErrMTLSRequired
		}
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled {
		if strings.TrimSpace(c.TLS.CertFile) == "" {
			return ErrTLSCertFileRequired
		}
		if strings.TrimSpace(c.TLS.KeyFile) == "" {
			return ErrTLSKeyFileRequired
		}
	}
	if c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}

// PoolConfig is the pool config record from §4.11.
type PoolConfig struct {
	Host          string        `toml:"host"`
	Port          uint16        `toml:"port"`
	SecurityMode  SecurityMode  `toml:"security_mode"`
	TLS           TLSConfig     `toml:"tls"`
	SocketTimeout time.Duration `toml:"socket_timeout"`
	PingInterval  time.Duration `toml:"ping_interval"`
	MaxClients    int           `toml:"max_clients"`
}

func (c PoolConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// File is the top-level TOML document layout loaded by LoadFile: a
// single file can carry any subset of the three config records.
type File struct {
	Client *ClientConfig `toml:"client"`
	Server *ServerConfig `toml:"server"`
	Pool   *PoolConfig   `toml:"pool"`
}

// LoadFile reads and parses a TOML config file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}
