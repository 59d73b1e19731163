// Package config defines the configuration structures for kgeval.  Only plain
// data types, path composition and validation live here; reading files and
// environment variables is the loader's job.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Evaluation
// ─────────────────────────────────────────────────────────────────────────────

// EvalConfig holds the run parameters.  The training tags (Dim .. Method) only
// locate the checkpoint; they do not change how scoring works.
type EvalConfig struct {
	Dim       int     `mapstructure:"dim"`
	MarginPos int     `mapstructure:"margin_pos"`
	MarginNeg int     `mapstructure:"margin_neg"`
	Rate      float64 `mapstructure:"rate"`
	Batch     int     `mapstructure:"batch"` // training batch tag
	Method    string  `mapstructure:"method"`

	Epoch    int    `mapstructure:"epoch"`
	Start    int    `mapstructure:"start"`
	End      int    `mapstructure:"end"`
	TestName string `mapstructure:"test_name"`

	// Seed drives context-feature truncation.  0 means seed from the clock.
	Seed int64 `mapstructure:"seed"`

	// BatchSize is the number of triples scored per batch.
	BatchSize int `mapstructure:"batch_size"`

	// Timeout bounds a whole run; 0 disables it.
	Timeout time.Duration `mapstructure:"timeout"`
}

// NetName renders "<dim>-<margin_pos>-<margin_neg>(<rate>-<batch>)-<method>",
// the directory name the trainer writes checkpoints under.
func (e EvalConfig) NetName() string {
	return fmt.Sprintf("%d-%d-%d(%s-%d)-%s",
		e.Dim, e.MarginPos, e.MarginNeg, FormatRate(e.Rate), e.Batch, e.Method)
}

// FormatRate renders a learning rate the way the trainer names its output
// directories: shortest round-trip decimal, scientific notation below 1e-4,
// and always at least one fractional digit ("1.0", "0.0001", "1e-05").
func FormatRate(rate float64) string {
	if rate != 0 && (rate < 1e-4 && rate > -1e-4 || rate >= 1e16 || rate <= -1e16) {
		return strconv.FormatFloat(rate, 'e', -1, 64)
	}
	s := strconv.FormatFloat(rate, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// DatasetConfig locates the dataset files.
type DatasetConfig struct {
	Root     string `mapstructure:"root"`
	Name     string `mapstructure:"name"`
	Entities string `mapstructure:"entities"`
	Relation string `mapstructure:"relations"`
	Train    string `mapstructure:"train"`

	// NeighborSource is "file" (train file) or "neo4j".
	NeighborSource string `mapstructure:"neighbor_source"`
}

// CheckpointConfig locates the model.
type CheckpointConfig struct {
	// OutRoot is the trainer's output root; checkpoints and reports live below it.
	OutRoot string `mapstructure:"out_root"`

	// Extension of the checkpoint file, without the dot.
	Extension string `mapstructure:"extension"`

	// Path overrides the composed checkpoint path.  May be an s3:// URI.
	// Every EpochPlaceholder in it is replaced by the evaluated epoch.
	Path string `mapstructure:"path"`

	// Backend is "local" (checkpoint file) or "grpc" (remote model).
	Backend string `mapstructure:"backend"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Infrastructure
// ─────────────────────────────────────────────────────────────────────────────

// MinIOConfig holds S3-compatible object storage parameters.
type MinIOConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Region       string `mapstructure:"region"`
	ReportBucket string `mapstructure:"report_bucket"`
	CacheDir     string `mapstructure:"cache_dir"`
}

// RedisConfig holds distance-cache parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds run-event producer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	GroupID      string        `mapstructure:"group_id"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Neo4jConfig holds graph-database parameters for the neighbor source.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
}

// DatabaseConfig holds run-history PostgreSQL parameters.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// MetricsConfig controls Prometheus export after a CLI run.
type MetricsConfig struct {
	// TextfilePath, when set, receives the registry in node-exporter textfile format.
	TextfilePath string `mapstructure:"textfile_path"`
}

// ServerConfig holds the HTTP server parameters used by "kgeval serve".
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GRPCConfig holds the remote model endpoint and the embedding server port.
type GRPCConfig struct {
	Target      string        `mapstructure:"target"`
	Port        int           `mapstructure:"port"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Log        logging.LogConfig `mapstructure:"log"`
	Eval       EvalConfig        `mapstructure:"eval"`
	Dataset    DatasetConfig     `mapstructure:"dataset"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint"`
	MinIO      MinIOConfig       `mapstructure:"minio"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Kafka      KafkaConfig       `mapstructure:"kafka"`
	Neo4j      Neo4jConfig       `mapstructure:"neo4j"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Server     ServerConfig      `mapstructure:"server"`
	GRPC       GRPCConfig        `mapstructure:"grpc"`
}

// DatasetDir is <dataset.root>/<dataset.name>.
func (c *Config) DatasetDir() string {
	return filepath.Join(c.Dataset.Root, c.Dataset.Name)
}

// DatasetFile joins name onto DatasetDir.
func (c *Config) DatasetFile(name string) string {
	return filepath.Join(c.DatasetDir(), name)
}

// RunDir is <out_root>/<dataset>/<net_name>.
func (c *Config) RunDir() string {
	return filepath.Join(c.Checkpoint.OutRoot, c.Dataset.Name, c.Eval.NetName())
}

// EpochPlaceholder in checkpoint.path stands for the evaluated epoch.
const EpochPlaceholder = "{epoch}"

// CheckpointPathForEpoch returns the checkpoint location for epoch, honouring
// an explicit checkpoint.path override.
func (c *Config) CheckpointPathForEpoch(epoch int) string {
	if c.Checkpoint.Path != "" {
		return strings.ReplaceAll(c.Checkpoint.Path, EpochPlaceholder, strconv.Itoa(epoch))
	}
	return filepath.Join(c.RunDir(), fmt.Sprintf("net-%d.%s", epoch, c.Checkpoint.Extension))
}

// PinnedCheckpoint reports whether a local checkpoint.path resolves to the
// same file for every epoch.
func (c *Config) PinnedCheckpoint() bool {
	return c.Checkpoint.Backend == BackendLocal &&
		c.Checkpoint.Path != "" &&
		!strings.Contains(c.Checkpoint.Path, EpochPlaceholder)
}

// CheckpointPath is CheckpointPathForEpoch(c.Eval.Epoch).
func (c *Config) CheckpointPath() string {
	return c.CheckpointPathForEpoch(c.Eval.Epoch)
}

// ReportDir is <out_root>/<dataset>/<net_name>/valid.
func (c *Config) ReportDir() string {
	return filepath.Join(c.RunDir(), "valid")
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Dataset.Name == "" {
		return fmt.Errorf("config: dataset.name is required")
	}
	if c.Eval.Dim <= 0 {
		return fmt.Errorf("config: eval.dim must be positive, got %d", c.Eval.Dim)
	}
	if c.Eval.Start >= c.Eval.End {
		return fmt.Errorf("config: eval.start (%d) must be less than eval.end (%d)", c.Eval.Start, c.Eval.End)
	}
	if c.Eval.Epoch < 0 {
		return fmt.Errorf("config: eval.epoch must not be negative, got %d", c.Eval.Epoch)
	}
	if c.Eval.BatchSize <= 0 {
		return fmt.Errorf("config: eval.batch_size must be positive, got %d", c.Eval.BatchSize)
	}
	if c.Eval.TestName == "" {
		return fmt.Errorf("config: eval.test_name is required")
	}
	switch c.Checkpoint.Backend {
	case BackendLocal:
	case BackendGRPC:
		if c.GRPC.Target == "" {
			return fmt.Errorf("config: grpc.target is required when checkpoint.backend is %q", BackendGRPC)
		}
	default:
		return fmt.Errorf("config: unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	switch c.Dataset.NeighborSource {
	case NeighborSourceFile:
	case NeighborSourceNeo4j:
		if c.Neo4j.URI == "" {
			return fmt.Errorf("config: neo4j.uri is required when dataset.neighbor_source is %q", NeighborSourceNeo4j)
		}
	default:
		return fmt.Errorf("config: unknown dataset.neighbor_source %q", c.Dataset.NeighborSource)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must not be empty when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required when kafka is enabled")
		}
	}
	if c.MinIO.Enabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
	}
	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required when database is enabled")
	}
	return nil
}
