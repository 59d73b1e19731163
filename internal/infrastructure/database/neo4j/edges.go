package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/kgeval/internal/domain/graph"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Training edges are stored as (:Entity {name})-[:FACT {relation, line}]->(:Entity {name}).
// line preserves train.txt order so context pairs come back in file order.
const (
	cypherLoadEdges = `
MATCH (h:Entity)-[f:FACT]->(t:Entity)
RETURN h.name AS head, f.relation AS relation, t.name AS tail
ORDER BY f.line`

	cypherImportEdges = `
UNWIND $rows AS row
MERGE (h:Entity {name: row.head})
MERGE (t:Entity {name: row.tail})
MERGE (h)-[f:FACT {relation: row.relation, line: row.line}]->(t)`

	cypherCountEdges = `MATCH (:Entity)-[f:FACT]->(:Entity) RETURN count(f) AS n`
)

// DefaultImportBatch is the number of edges written per transaction.
const DefaultImportBatch = 5000

type executor interface {
	ExecuteRead(ctx context.Context, work TransactionWork) (any, error)
	ExecuteWrite(ctx context.Context, work TransactionWork) (any, error)
}

// EdgeRepository loads and stores training edges.  It implements graph.EdgeLoader.
type EdgeRepository struct {
	db     executor
	logger logging.Logger
	batch  int
}

var _ graph.EdgeLoader = (*EdgeRepository)(nil)

// NewEdgeRepository builds a repository over d.
func NewEdgeRepository(d *Driver, log logging.Logger) *EdgeRepository {
	return newEdgeRepository(d, log)
}

func newEdgeRepository(db executor, log logging.Logger) *EdgeRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &EdgeRepository{db: db, logger: log, batch: DefaultImportBatch}
}

type rawEdge struct {
	head, relation, tail string
}

// LoadEdges reads every FACT edge and resolves names against the vocabularies.
// An unknown name is a dataset error, matching the file loader.
func (r *EdgeRepository) LoadEdges(ctx context.Context, entities, relations *graph.Vocabulary) ([]graph.Triple, error) {
	out, err := r.db.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherLoadEdges, nil)
		if err != nil {
			return nil, err
		}
		return CollectRecords(ctx, res, mapEdge)
	})
	if err != nil {
		return nil, err
	}

	raw, _ := out.([]rawEdge)
	triples := make([]graph.Triple, 0, len(raw))
	for i, e := range raw {
		h, ok := entities.Resolve(e.head)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownName, "unknown head entity in graph").WithDetailf("edge %d: %q", i, e.head)
		}
		rel, ok := relations.Resolve(e.relation)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownName, "unknown relation in graph").WithDetailf("edge %d: %q", i, e.relation)
		}
		t, ok := entities.Resolve(e.tail)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownName, "unknown tail entity in graph").WithDetailf("edge %d: %q", i, e.tail)
		}
		triples = append(triples, graph.Triple{Head: h, Relation: rel, Tail: t})
	}
	r.logger.Info("loaded training edges from neo4j", logging.Int("edges", len(triples)))
	return triples, nil
}

func mapEdge(rec *neo4j.Record) (rawEdge, error) {
	var e rawEdge
	for key, dst := range map[string]*string{"head": &e.head, "relation": &e.relation, "tail": &e.tail} {
		v, ok := rec.Get(key)
		if !ok {
			return e, errors.New(errors.ErrCodeDatasetMalformed, "edge record missing column").WithDetail(key)
		}
		s, ok := v.(string)
		if !ok {
			return e, errors.New(errors.ErrCodeDatasetMalformed, "edge column is not a string").WithDetailf("%s=%v", key, v)
		}
		*dst = s
	}
	return e, nil
}

// ImportEdges writes triples as FACT edges using vocabulary names, in batches.
// Re-importing the same file is idempotent.
func (r *EdgeRepository) ImportEdges(ctx context.Context, triples []graph.Triple, entities, relations *graph.Vocabulary) (int, error) {
	written := 0
	for lo := 0; lo < len(triples); lo += r.batch {
		hi := lo + r.batch
		if hi > len(triples) {
			hi = len(triples)
		}
		rows := make([]map[string]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			t := triples[i]
			head, _ := entities.Name(t.Head)
			rel, _ := relations.Name(t.Relation)
			tail, _ := entities.Name(t.Tail)
			rows = append(rows, map[string]any{"head": head, "relation": rel, "tail": tail, "line": int64(i)})
		}
		if _, err := r.db.ExecuteWrite(ctx, func(tx Transaction) (any, error) {
			_, err := tx.Run(ctx, cypherImportEdges, map[string]any{"rows": rows})
			return nil, err
		}); err != nil {
			return written, fmt.Errorf("import edges %d..%d: %w", lo, hi, err)
		}
		written += hi - lo
		r.logger.Debug("imported edge batch", logging.Int("from", lo), logging.Int("to", hi))
	}
	return written, nil
}

// CountEdges returns the number of stored FACT edges.
func (r *EdgeRepository) CountEdges(ctx context.Context) (int64, error) {
	out, err := r.db.ExecuteRead(ctx, func(tx Transaction) (any, error) {
		res, err := tx.Run(ctx, cypherCountEdges, nil)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return int64(0), res.Err()
		}
		n, _ := res.Record().Get("n")
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := out.(int64)
	return n, nil
}
