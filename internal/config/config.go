// Package config loads the simulator's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	rio "ransim/internal/io"
	"ransim/pkg/ngap"
)

var ErrInvalid = errors.New("invalid configuration")

// MaxTerminals is bounded by the 16-bit terminal id.
const MaxTerminals = 1 << 16

type Config struct {
	Log    LogConfig    `yaml:"log"`
	Gnb    GnbConfig    `yaml:"gnb"`
	Amf    AmfConfig    `yaml:"amf"`
	UE     UEConfig     `yaml:"ue"`
	Report ReportConfig `yaml:"report"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type GnbConfig struct {
	Listen           string        `yaml:"listen"`
	Transport        string        `yaml:"transport"`
	Terminals        int           `yaml:"terminals"`
	Tick             time.Duration `yaml:"tick"`
	MonitorInterval  time.Duration `yaml:"monitor_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	StatusListen     string        `yaml:"status_listen"`
	MetricsListen    string        `yaml:"metrics_listen"`
}

type AmfConfig struct {
	Capacities    []int         `yaml:"capacities"`
	GnbAddr       string        `yaml:"gnb_addr"`
	PagingStep    time.Duration `yaml:"paging_step"`
	Tick          time.Duration `yaml:"tick"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type UEConfig struct {
	PermanentIDBase   uint64        `yaml:"permanent_id_base"`
	IdleStep          time.Duration `yaml:"idle_step"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	MaxServiceRetries int           `yaml:"max_service_retries"`
}

type ReportConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Key       string `yaml:"key"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Development: true},
		Gnb: GnbConfig{
			Listen:           "127.0.0.1:9100",
			Transport:        rio.TransportTCP,
			Terminals:        200,
			Tick:             time.Millisecond,
			MonitorInterval:  time.Second,
			HandshakeTimeout: 5 * time.Second,
			WriteTimeout:     rio.DefaultWriteTimeout,
		},
		Amf: AmfConfig{
			Capacities:    []int{40, 20, 30, 70, 40},
			GnbAddr:       "127.0.0.1:9100",
			PagingStep:    500 * time.Millisecond,
			Tick:          time.Millisecond,
			RetryInterval: 500 * time.Millisecond,
		},
		UE: UEConfig{
			PermanentIDBase:   452040000000001,
			IdleStep:          500 * time.Millisecond,
			RetryInterval:     5 * time.Second,
			MaxServiceRetries: 3,
		},
		Report: ReportConfig{Key: "ransim:report"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes buf into cfg. Unknown keys are rejected.
func Parse(buf []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.Gnb.Terminals <= 0:
		return fmt.Errorf("%w: gnb.terminals must be positive", ErrInvalid)
	case c.Gnb.Terminals > MaxTerminals:
		return fmt.Errorf("%w: gnb.terminals above %d", ErrInvalid, MaxTerminals)
	case len(c.Amf.Capacities) == 0:
		return fmt.Errorf("%w: no AMF capacities", ErrInvalid)
	case len(c.Amf.Capacities) > ngap.MaxAMF:
		return fmt.Errorf("%w: more than %d AMFs", ErrInvalid, ngap.MaxAMF)
	case c.Gnb.Transport != rio.TransportTCP && c.Gnb.Transport != rio.TransportSCTP:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Gnb.Transport)
	case c.Gnb.Tick <= 0 || c.Amf.Tick <= 0:
		return fmt.Errorf("%w: ticks must be positive", ErrInvalid)
	case c.Gnb.MonitorInterval <= 0:
		return fmt.Errorf("%w: gnb.monitor_interval must be positive", ErrInvalid)
	case c.Amf.PagingStep <= 0 || c.UE.IdleStep <= 0:
		return fmt.Errorf("%w: paging and idle steps must be positive", ErrInvalid)
	case c.UE.MaxServiceRetries < 0:
		return fmt.Errorf("%w: ue.max_service_retries is negative", ErrInvalid)
	case c.Gnb.WriteTimeout < 0:
		return fmt.Errorf("%w: gnb.write_timeout is negative", ErrInvalid)
	case !tmpSafe(c.UE.PermanentIDBase, c.Gnb.Terminals):
		return fmt.Errorf("%w: ue.permanent_id_base %d gives a terminal a zero low 24 bits",
			ErrInvalid, c.UE.PermanentIDBase)
	}
	for i, capacity := range c.Amf.Capacities {
		if capacity <= 0 {
			return fmt.Errorf("%w: AMF %d capacity %d", ErrInvalid, i, capacity)
		}
	}
	return nil
}

// tmpSafe reports whether every permanent id base+i, i < n, has non-zero low
// 24 bits. AMF 0 would otherwise issue the temporary id 0, which terminals
// read as unset.
func tmpSafe(base uint64, n int) bool {
	low := ngap.TemporaryID(0, base)
	return low != 0 && low+uint64(n) <= 1<<24
}
