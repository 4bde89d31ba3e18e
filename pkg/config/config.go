// Package config loads the settings of a versioned store from flags, environment and config file,
// then opens the store they describe.
package config

import (
	"context"
	"io"
	"strings"

	units "github.com/docker/go-units"
	"github.com/oneconcern/vkv/pkg/dlogger"
	"github.com/oneconcern/vkv/pkg/engine"
	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/kv"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix for environment variables, e.g. VKV_DIR
const EnvPrefix = "VKV"

// ErrInvalidConfig is returned when settings are inconsistent
var ErrInvalidConfig = errors.New("invalid configuration")

// Settings of a store
const (
	keyDir          = "dir"
	keyBranch       = "branch"
	keyVersion      = "version"
	keyLogLevel     = "log_level"
	keyLogEncoding  = "log_encoding"
	keyCacheSize    = "cache_size"
	keyMemTableSize = "memtable_size"
	keyEmptyCommit  = "empty_commit"
	keyAfterCommit  = "after_commit"
)

// Policy names
const (
	PolicyReject   = "reject"
	PolicyAllow    = "allow"
	PolicyReadOnly = "readonly"
	PolicyWritable = "writable"
)

// Config of a versioned store.
//
// An empty Dir keeps the repository in memory. A Version opens the store read-only, otherwise it is writable on Branch.
type Config struct {
	Dir          string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Branch       string `json:"branch" yaml:"branch" mapstructure:"branch"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty" mapstructure:"version"`
	LogLevel     string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogEncoding  string `json:"log_encoding" yaml:"log_encoding" mapstructure:"log_encoding"`
	CacheSize    int    `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
	MemTableSize string `json:"memtable_size,omitempty" yaml:"memtable_size,omitempty" mapstructure:"memtable_size"`
	EmptyCommit  string `json:"empty_commit" yaml:"empty_commit" mapstructure:"empty_commit"`
	AfterCommit  string `json:"after_commit" yaml:"after_commit" mapstructure:"after_commit"`
}

// Default settings: an in-memory store, writable on the default branch
func Default() Config {
	return Config{
		Branch:      model.DefaultBranch,
		LogLevel:    dlogger.LogLevelInfo,
		LogEncoding: dlogger.EncodingJSON,
		CacheSize:   64,
		EmptyCommit: PolicyReject,
		AfterCommit: PolicyReadOnly,
	}
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags adds the store settings to a flag set
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagName(keyDir), d.Dir, "The directory of the repository (in memory when empty)")
	fs.String(flagName(keyBranch), d.Branch, "The branch to write to")
	fs.String(flagName(keyVersion), d.Version, "A snapshot id, branch or tag to open read-only")
	fs.String(flagName(keyLogLevel), d.LogLevel, "The log level (debug, info, none)")
	fs.String(flagName(keyLogEncoding), d.LogEncoding, "The log encoding (json, console)")
	fs.Int(flagName(keyCacheSize), d.CacheSize, "The number of snapshot manifests kept in memory")
	fs.String(flagName(keyMemTableSize), d.MemTableSize, "The size of metadata memtables (in KB, MB, GB, ...)")
	fs.String(flagName(keyEmptyCommit), d.EmptyCommit, "What to do on commits without changes (reject, allow)")
	fs.String(flagName(keyAfterCommit), d.AfterCommit, "The session after a commit (readonly, writable)")
}

// Load settings, by order of precedence: flags, environment, config file, defaults.
//
// The flags and the config file are optional.
func Load(v *viper.Viper, flags *pflag.FlagSet, file string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	d := Default()
	v.SetDefault(keyDir, d.Dir)
	v.SetDefault(keyBranch, d.Branch)
	v.SetDefault(keyVersion, d.Version)
	v.SetDefault(keyLogLevel, d.LogLevel)
	v.SetDefault(keyLogEncoding, d.LogEncoding)
	v.SetDefault(keyCacheSize, d.CacheSize)
	v.SetDefault(keyMemTableSize, d.MemTableSize)
	v.SetDefault(keyEmptyCommit, d.EmptyCommit)
	v.SetDefault(keyAfterCommit, d.AfterCommit)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if flags != nil {
		for _, key := range []string{
			keyDir, keyBranch, keyVersion, keyLogLevel, keyLogEncoding,
			keyCacheSize, keyMemTableSize, keyEmptyCommit, keyAfterCommit,
		} {
			if flag := flags.Lookup(flagName(key)); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return Config{}, ErrInvalidConfig.Wrap(err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, ErrInvalidConfig.Wrapf("reading %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, ErrInvalidConfig.Wrap(err)
	}
	return cfg, cfg.Validate()
}

// Validate settings
func (c Config) Validate() error {
	if c.Version != "" {
		if _, err := model.ParseVersionRef(c.Version); err != nil {
			return ErrInvalidConfig.Wrap(err)
		}
	} else if err := model.ValidateRefName(c.Branch); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	if _, err := c.memTableSize(); err != nil {
		return err
	}
	if _, err := c.emptyCommitPolicy(); err != nil {
		return err
	}
	_, err := c.afterCommitPolicy()
	return err
}

func (c Config) memTableSize() (int64, error) {
	if c.MemTableSize == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(c.MemTableSize)
	if err != nil {
		return 0, ErrInvalidConfig.Wrapf("memtable size: %w", err)
	}
	return size, nil
}

func (c Config) emptyCommitPolicy() (kv.EmptyCommitPolicy, error) {
	switch c.EmptyCommit {
	case "", PolicyReject:
		return kv.RejectEmptyCommit, nil
	case PolicyAllow:
		return kv.AllowEmptyCommit, nil
	default:
		return 0, ErrInvalidConfig.Wrapf("empty commit policy must be %q or %q, got %q", PolicyReject, PolicyAllow, c.EmptyCommit)
	}
}

func (c Config) afterCommitPolicy() (kv.AfterCommitPolicy, error) {
	switch c.AfterCommit {
	case "", PolicyReadOnly:
		return kv.AfterCommitReadOnly, nil
	case PolicyWritable:
		return kv.AfterCommitWritable, nil
	default:
		return 0, ErrInvalidConfig.Wrapf("after commit policy must be %q or %q, got %q", PolicyReadOnly, PolicyWritable, c.AfterCommit)
	}
}

// Dump the settings as YAML
func (c Config) Dump(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Open the store described by the settings. Closing the store releases the repository.
func (c Config) Open(ctx context.Context, opts ...kv.Option) (*kv.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger, err := dlogger.GetLoggerWithEncoding(c.LogLevel, c.LogEncoding)
	if err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	memTableSize, _ := c.memTableSize()
	emptyCommit, _ := c.emptyCommitPolicy()
	afterCommit, _ := c.afterCommitPolicy()

	engineOpts := []engine.Option{
		engine.Logger(logger),
		engine.CacheSize(c.CacheSize),
		engine.MemTableSize(memTableSize),
	}
	var repo engine.Repository
	if c.Dir == "" {
		repo, err = engine.NewInMemory(ctx, engineOpts...)
	} else {
		repo, err = engine.Open(ctx, c.Dir, engineOpts...)
	}
	if err != nil {
		return nil, err
	}

	storeOpts := []kv.Option{
		kv.Logger(logger),
		kv.ClosesRepository(),
		kv.WithEmptyCommitPolicy(emptyCommit),
		kv.WithAfterCommit(afterCommit),
	}
	if c.Version != "" {
		ref, _ := model.ParseVersionRef(c.Version)
		storeOpts = append(storeOpts, kv.WithVersion(ref))
	} else {
		storeOpts = append(storeOpts, kv.WithBranch(c.Branch))
	}

	st, err := kv.New(ctx, repo, append(storeOpts, opts...)...)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return st, nil
}
