package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix of every setting.
const envPrefix = "KGEVAL"

// NewViper builds a Viper instance with YAML file type, the KGEVAL_ env
// prefix and a "." → "_" key replacer, so "eval.start" resolves to
// KGEVAL_EVAL_START.  The CLI binds its flags onto the returned instance.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerKeys(v)
	return v
}

// registerKeys seeds viper with the defaults of every scalar key.  Unmarshal
// only consults the environment for keys viper already knows about.
func registerKeys(v *viper.Viper) {
	d := NewDefaultConfig()
	defaults := map[string]interface{}{
		"log.level":                d.Log.Level,
		"log.format":               d.Log.Format,
		"eval.dim":                 d.Eval.Dim,
		"eval.margin_pos":          d.Eval.MarginPos,
		"eval.margin_neg":          d.Eval.MarginNeg,
		"eval.rate":                d.Eval.Rate,
		"eval.batch":               d.Eval.Batch,
		"eval.method":              d.Eval.Method,
		"eval.epoch":               d.Eval.Epoch,
		"eval.start":               d.Eval.Start,
		"eval.end":                 d.Eval.End,
		"eval.test_name":           d.Eval.TestName,
		"eval.seed":                int64(0),
		"eval.batch_size":          d.Eval.BatchSize,
		"eval.timeout":             d.Eval.Timeout,
		"dataset.root":             d.Dataset.Root,
		"dataset.name":             d.Dataset.Name,
		"dataset.entities":         d.Dataset.Entities,
		"dataset.relations":        d.Dataset.Relation,
		"dataset.train":            d.Dataset.Train,
		"dataset.neighbor_source":  d.Dataset.NeighborSource,
		"checkpoint.out_root":      d.Checkpoint.OutRoot,
		"checkpoint.extension":     d.Checkpoint.Extension,
		"checkpoint.path":          "",
		"checkpoint.backend":       d.Checkpoint.Backend,
		"minio.enabled":            false,
		"minio.endpoint":           "",
		"minio.access_key":         "",
		"minio.secret_key":         "",
		"minio.use_ssl":            false,
		"minio.report_bucket":      d.MinIO.ReportBucket,
		"redis.enabled":            false,
		"redis.addr":               d.Redis.Addr,
		"redis.password":           "",
		"redis.ttl":                d.Redis.TTL,
		"redis.key_prefix":         d.Redis.KeyPrefix,
		"kafka.enabled":            false,
		"kafka.brokers":            []string{},
		"kafka.topic":              d.Kafka.Topic,
		"kafka.group_id":           d.Kafka.GroupID,
		"neo4j.uri":                "",
		"neo4j.user":               "",
		"neo4j.password":           "",
		"neo4j.database":           d.Neo4j.Database,
		"database.enabled":         false,
		"database.host":            d.Database.Host,
		"database.port":            d.Database.Port,
		"database.user":            "",
		"database.password":        "",
		"database.db_name":         d.Database.DBName,
		"database.auto_migrate":    false,
		"metrics.textfile_path":    "",
		"server.port":              d.Server.Port,
		"server.mode":              d.Server.Mode,
		"grpc.target":              "",
		"grpc.port":                d.GRPC.Port,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the YAML file at configPath, merges KGEVAL_* overrides, applies
// defaults and validates the result.
func Load(configPath string) (*Config, error) {
	return LoadWith(NewViper(), configPath)
}

// LoadWith finishes loading on a caller-supplied Viper (typically one with CLI
// flags bound).  An empty configPath skips the file.
func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
		}
	}
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch re-reads configPath whenever it changes on disk and hands the new
// Config to onChange.  Invalid edits are dropped.  "kgeval serve" uses it to
// follow log-level changes.
func Watch(v *viper.Viper, configPath string, onChange func(*Config)) {
	if configPath == "" {
		return
	}
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

