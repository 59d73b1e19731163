package config

import "time"

// Backends and neighbor sources.
const (
	BackendLocal = "local"
	BackendGRPC  = "grpc"

	NeighborSourceFile  = "file"
	NeighborSourceNeo4j = "neo4j"
)

// Default values.  The evaluation defaults match the trainer's own flags so
// that an unconfigured run finds the checkpoint the trainer wrote.
const (
	DefaultDim       = 50
	DefaultMarginPos = 1
	DefaultMarginNeg = 100
	DefaultRate      = 0.0001
	DefaultBatch     = 1000
	DefaultMethod    = "bern"
	DefaultEpoch     = 300
	DefaultStart     = 0
	DefaultEnd       = 110
	DefaultTestName  = "valid.txt"
	DefaultBatchSize = 1000

	DefaultDatasetRoot  = ".."
	DefaultDatasetName  = "FB13"
	DefaultEntitiesFile = "entity2id.txt"
	DefaultRelationFile = "relation2id.txt"
	DefaultTrainFile    = "train.txt"

	DefaultOutRoot             = "out"
	DefaultCheckpointExtension = "json"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisTTL       = 24 * time.Hour
	DefaultRedisKeyPrefix = "kgeval"

	DefaultKafkaTopic   = "kgeval.runs"
	DefaultKafkaGroupID = "kgeval-history"

	DefaultMinIOReportBucket = "kgeval-reports"
	DefaultMinIOCacheDir     = ".kgeval/checkpoints"

	DefaultDBHost = "localhost"
	DefaultDBPort = 5432
	DefaultDBName = "kgeval"

	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultGRPCPort   = 9090
)

// ApplyDefaults fills zero-value fields in cfg.  Values already set win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Eval ──────────────────────────────────────────────────────────────────
	e := &cfg.Eval
	if e.Dim == 0 {
		e.Dim = DefaultDim
	}
	if e.MarginPos == 0 {
		e.MarginPos = DefaultMarginPos
	}
	if e.MarginNeg == 0 {
		e.MarginNeg = DefaultMarginNeg
	}
	if e.Rate == 0 {
		e.Rate = DefaultRate
	}
	if e.Batch == 0 {
		e.Batch = DefaultBatch
	}
	if e.Method == "" {
		e.Method = DefaultMethod
	}
	if e.TestName == "" {
		e.TestName = DefaultTestName
	}
	if e.BatchSize == 0 {
		e.BatchSize = DefaultBatchSize
	}
	// start, end and epoch have meaningful zero values; only a fully empty
	// range is treated as unset.
	if e.Start == 0 && e.End == 0 {
		e.Start, e.End = DefaultStart, DefaultEnd
	}

	// ── Dataset ───────────────────────────────────────────────────────────────
	d := &cfg.Dataset
	if d.Root == "" {
		d.Root = DefaultDatasetRoot
	}
	if d.Name == "" {
		d.Name = DefaultDatasetName
	}
	if d.Entities == "" {
		d.Entities = DefaultEntitiesFile
	}
	if d.Relation == "" {
		d.Relation = DefaultRelationFile
	}
	if d.Train == "" {
		d.Train = DefaultTrainFile
	}
	if d.NeighborSource == "" {
		d.NeighborSource = NeighborSourceFile
	}

	// ── Checkpoint ────────────────────────────────────────────────────────────
	if cfg.Checkpoint.OutRoot == "" {
		cfg.Checkpoint.OutRoot = DefaultOutRoot
	}
	if cfg.Checkpoint.Extension == "" {
		cfg.Checkpoint.Extension = DefaultCheckpointExtension
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = BackendLocal
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.ReportBucket == "" {
		cfg.MinIO.ReportBucket = DefaultMinIOReportBucket
	}
	if cfg.MinIO.CacheDir == "" {
		cfg.MinIO.CacheDir = DefaultMinIOCacheDir
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = "neo4j"
	}
	if cfg.Neo4j.ConnectionTimeout == 0 {
		cfg.Neo4j.ConnectionTimeout = 30 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Server / gRPC ─────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}
	if cfg.GRPC.CallTimeout == 0 {
		cfg.GRPC.CallTimeout = 30 * time.Second
	}
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Eval.Epoch = DefaultEpoch
	ApplyDefaults(cfg)
	return cfg
}
