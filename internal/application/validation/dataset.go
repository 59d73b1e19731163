package validation

import (
	"context"
	"io"
	"os"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/graph"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// LoadDataset reads the vocabularies, the neighbor source and the test file
// of cfg's dataset.  edges is consulted only when dataset.neighbor_source is
// "neo4j".
func LoadDataset(ctx context.Context, cfg *config.Config, edges graph.EdgeLoader, log logging.Logger) (*graph.Dataset, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}

	entities, relations, err := loadVocabularies(cfg)
	if err != nil {
		return nil, err
	}

	var train []graph.Triple
	switch cfg.Dataset.NeighborSource {
	case config.NeighborSourceNeo4j:
		if edges == nil {
			return nil, errors.New(errors.ErrCodeValidation, "neo4j neighbor source requested without a graph connection")
		}
		train, err = edges.LoadEdges(ctx, entities, relations)
	default:
		train, err = loadTrain(cfg, entities, relations)
	}
	if err != nil {
		return nil, err
	}
	index := graph.BuildNeighborIndex(train, entities.Len())

	var tests []graph.LabeledTriple
	err = withFile(cfg.DatasetFile(cfg.Eval.TestName), func(r io.Reader) (err error) {
		tests, err = graph.LoadLabeledTriples(r, entities, relations)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("dataset loaded",
		logging.String("dataset", cfg.Dataset.Name),
		logging.Int("entities", entities.Len()),
		logging.Int("relations", relations.Len()),
		logging.Int("train_edges", index.EdgeCount()),
		logging.Int("tests", len(tests)),
		logging.String("neighbor_source", cfg.Dataset.NeighborSource),
	)
	return &graph.Dataset{Entities: entities, Relations: relations, Neighbors: index, Tests: tests}, nil
}

// LoadTrainGraph reads the vocabularies and the train file, ignoring
// dataset.neighbor_source.
func LoadTrainGraph(cfg *config.Config) (entities, relations *graph.Vocabulary, train []graph.Triple, err error) {
	entities, relations, err = loadVocabularies(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	train, err = loadTrain(cfg, entities, relations)
	if err != nil {
		return nil, nil, nil, err
	}
	return entities, relations, train, nil
}

func loadVocabularies(cfg *config.Config) (entities, relations *graph.Vocabulary, err error) {
	err = withFile(cfg.DatasetFile(cfg.Dataset.Entities), func(r io.Reader) (err error) {
		entities, err = graph.LoadVocabulary(r)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	err = withFile(cfg.DatasetFile(cfg.Dataset.Relation), func(r io.Reader) (err error) {
		relations, err = graph.LoadVocabulary(r)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return entities, relations, nil
}

func loadTrain(cfg *config.Config, entities, relations *graph.Vocabulary) (train []graph.Triple, err error) {
	err = withFile(cfg.DatasetFile(cfg.Dataset.Train), func(r io.Reader) (err error) {
		train, err = graph.LoadTriples(r, entities, relations)
		return err
	})
	return train, err
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatasetNotFound, "open dataset file").WithDetail(path)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		if errors.GetCode(err) == errors.CodeUnknown {
			return errors.Wrap(err, errors.ErrCodeDatasetMalformed, "read dataset file").WithDetail(path)
		}
		return errors.Wrap(err, errors.GetCode(err), "read dataset file").WithDetail(path)
	}
	return nil
}
