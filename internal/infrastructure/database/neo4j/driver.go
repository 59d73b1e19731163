// Package neo4j reads training edges from a Neo4j graph, so entities' context
// pairs can come from a shared knowledge graph instead of train.txt.
package neo4j

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Result is the slice of neo4j.ResultWithContext the repositories use.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Transaction is the slice of neo4j.ManagedTransaction the repositories use.
type Transaction interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// TransactionWork runs inside a managed transaction.
type TransactionWork func(tx Transaction) (any, error)

type session interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
	Close(ctx context.Context) error
}

type driverAPI interface {
	VerifyConnectivity(ctx context.Context) error
	NewSession(ctx context.Context, cfg neo4j.SessionConfig) session
	Close(ctx context.Context) error
}

type stdTransaction struct{ tx neo4j.ManagedTransaction }

func (t *stdTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.tx.Run(ctx, cypher, params)
}

type stdSession struct{ s neo4j.SessionWithContext }

func (s *stdSession) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	return s.s.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&stdTransaction{tx: tx})
	})
}

func (s *stdSession) Close(ctx context.Context) error { return s.s.Close(ctx) }

type stdDriver struct{ d neo4j.DriverWithContext }

func (d *stdDriver) VerifyConnectivity(ctx context.Context) error { return d.d.VerifyConnectivity(ctx) }

func (d *stdDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) session {
	return &stdSession{s: d.d.NewSession(ctx, cfg)}
}

func (d *stdDriver) Close(ctx context.Context) error { return d.d.Close(ctx) }

// Driver wraps the Neo4j driver with database selection and error mapping.
type Driver struct {
	driver   driverAPI
	database string
	logger   logging.Logger
	once     sync.Once
}

// NewDriver connects to cfg.URI and verifies connectivity.
func NewDriver(ctx context.Context, cfg config.Neo4jConfig, log logging.Logger) (*Driver, error) {
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	drv, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = 50
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		c.ConnectionAcquisitionTimeout = 60 * time.Second
		if cfg.ConnectionTimeout > 0 {
			c.SocketConnectTimeout = cfg.ConnectionTimeout
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create neo4j driver")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := drv.VerifyConnectivity(verifyCtx); err != nil {
		_ = drv.Close(ctx)
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to neo4j").WithDetail(cfg.URI)
	}

	log.Info("Connected to Neo4j", logging.String("uri", cfg.URI), logging.String("database", cfg.Database))
	return newDriver(&stdDriver{d: drv}, cfg.Database, log), nil
}

func newDriver(api driverAPI, database string, log logging.Logger) *Driver {
	if database == "" {
		database = "neo4j"
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Driver{driver: api, database: database, logger: log}
}

func (d *Driver) session(ctx context.Context, mode neo4j.AccessMode) session {
	return d.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: d.database, AccessMode: mode})
}

// ExecuteRead runs work in a read transaction.
func (d *Driver) ExecuteRead(ctx context.Context, work TransactionWork) (any, error) {
	s := d.session(ctx, neo4j.AccessModeRead)
	defer s.Close(ctx)

	res, err := s.ExecuteRead(ctx, work)
	if err != nil {
		d.logger.Error("Neo4j read transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j read failed")
	}
	return res, nil
}

// ExecuteWrite runs work in a write transaction.
func (d *Driver) ExecuteWrite(ctx context.Context, work TransactionWork) (any, error) {
	s := d.session(ctx, neo4j.AccessModeWrite)
	defer s.Close(ctx)

	res, err := s.ExecuteWrite(ctx, work)
	if err != nil {
		d.logger.Error("Neo4j write transaction failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "neo4j write failed")
	}
	return res, nil
}

// HealthCheck verifies connectivity.
func (d *Driver) HealthCheck(ctx context.Context) error {
	if err := d.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "neo4j connectivity check failed")
	}
	return nil
}

// Close releases the driver once.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.once.Do(func() {
		err = d.driver.Close(ctx)
		if err == nil {
			d.logger.Info("Closed Neo4j driver")
		} else {
			d.logger.Error("Failed to close Neo4j driver", logging.Err(err))
		}
	})
	return err
}

// CollectRecords maps every remaining record of result.
func CollectRecords[T any](ctx context.Context, result Result, mapper func(*neo4j.Record) (T, error)) ([]T, error) {
	var items []T
	for result.Next(ctx) {
		item, err := mapper(result.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
