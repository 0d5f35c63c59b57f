// Package configuration loads the YAML file describing one group member:
// who it is, who the rest of the group are, and which log it talks to.
//
//	member: m1
//	members:
//	  - name: m1
//	    weight: 2
//	  - name: m2
//	codec: binary
//	log:
//	  backend: etcd
//	  etcd:
//	    endpoints: [localhost:2379]
//	submit:
//	  timeout: 2s
//	  retries: 3
package configuration

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/zheilbron/atomix/codec"
	"github.com/zheilbron/atomix/loadbalance"
	"github.com/zheilbron/atomix/replog"
)

// Log backends.
const (
	BackendMemory = "memory"
	BackendEtcd   = "etcd"
	BackendRedis  = "redis"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Member  string               `yaml:"member"`
	Members []loadbalance.Member `yaml:"members"`
	Codec   string               `yaml:"codec"`
	Log     LogConfig            `yaml:"log"`
	Submit  SubmitConfig         `yaml:"submit"`
}

type LogConfig struct {
	Backend string      `yaml:"backend"`
	Etcd    EtcdConfig  `yaml:"etcd"`
	Redis   RedisConfig `yaml:"redis"`
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Stream   string        `yaml:"stream"`
	Block    time.Duration `yaml:"block"`
}

// SubmitConfig tunes the submission middleware. Zero values disable the
// corresponding middleware.
type SubmitConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Rate       float64       `yaml:"rate"`
	Burst      int           `yaml:"burst"`
}

// Default returns the configuration every file is applied on top of.
func Default() *Config {
	return &Config{
		Codec: "binary",
		Log: LogConfig{
			Backend: BackendMemory,
			Etcd: EtcdConfig{
				Endpoints:   []string{"localhost:2379"},
				Prefix:      replog.DefaultEtcdPrefix,
				DialTimeout: 5 * time.Second,
			},
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Stream: replog.DefaultRedisStream,
				Block:  500 * time.Millisecond,
			},
		},
		Submit: SubmitConfig{
			Timeout:    5 * time.Second,
			Retries:    3,
			RetryDelay: 50 * time.Millisecond,
		},
	}
}

// Load reads and validates the configuration file fname.
func Load(fname string) (*Config, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills in the member list when
// only the local member is given.
func (c *Config) Validate() error {
	if c.Member == "" {
		return fmt.Errorf("%w: member is required", ErrInvalid)
	}
	if len(c.Members) == 0 {
		c.Members = []loadbalance.Member{{Name: c.Member}}
	}

	seen := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		if m.Name == "" {
			return fmt.Errorf("%w: member without a name", ErrInvalid)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate member %q", ErrInvalid, m.Name)
		}
		if m.Weight < 0 {
			return fmt.Errorf("%w: member %q has negative weight", ErrInvalid, m.Name)
		}
		seen[m.Name] = true
	}
	if !seen[c.Member] {
		return fmt.Errorf("%w: member %q is not in members", ErrInvalid, c.Member)
	}

	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch c.Log.Backend {
	case BackendMemory:
	case BackendEtcd:
		if len(c.Log.Etcd.Endpoints) == 0 {
			return fmt.Errorf("%w: etcd backend needs endpoints", ErrInvalid)
		}
	case BackendRedis:
		if c.Log.Redis.Addr == "" {
			return fmt.Errorf("%w: redis backend needs an addr", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown log backend %q", ErrInvalid, c.Log.Backend)
	}

	s := c.Submit
	if s.Timeout < 0 || s.Retries < 0 || s.RetryDelay < 0 || s.Rate < 0 || s.Burst < 0 {
		return fmt.Errorf("%w: submit settings must not be negative", ErrInvalid)
	}
	if s.Rate > 0 && s.Burst == 0 {
		return fmt.Errorf("%w: submit rate needs a burst", ErrInvalid)
	}
	return nil
}

// CodecType returns the parsed codec; Validate has already checked it.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseCodecType(c.Codec)
	return t
}
