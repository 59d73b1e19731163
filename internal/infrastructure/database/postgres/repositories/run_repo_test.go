package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/database/postgres"
	apperrors "github.com/turtacn/kgeval/pkg/errors"
)

type RunRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo run.Repository
}

func (s *RunRepoTestSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db = db
	s.mock = mock
	s.repo = NewPostgresRunRepo(postgres.NewConnectionWithDB(db, nil), nil)
}

func (s *RunRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func TestRunRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RunRepoTestSuite))
}

var columns = []string{"id", "dataset", "net_name", "epoch", "model_id", "backend", "margin_start", "margin_end",
	"correct", "total", "accuracy", "relations", "skipped", "report_dir", "started_at", "finished_at"}

func sampleRecord() *run.Record {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &run.Record{
		ID: "7b3f4a1e-0000-4000-8000-000000000001", Dataset: "FB13", NetName: "net", Epoch: 300,
		ModelID: "transe-300", Backend: "local", Start: 0, End: 110,
		Correct: 9, Total: 10, Accuracy: 0.9,
		Relations: []run.RelationOutcome{{Relation: 0, Name: "knows", Margin: 3, Correct: 9, Total: 10, Accuracy: 0.9}},
		Skipped:   []int{1},
		ReportDir: "out/FB13/net", StartedAt: started, FinishedAt: started.Add(time.Minute),
	}
}

func (s *RunRepoTestSuite) TestSave_Success() {
	rec := sampleRecord()
	s.mock.ExpectExec("INSERT INTO validation_runs").
		WithArgs(rec.ID, "FB13", "net", 300, "transe-300", "local", 0, 110, 9, 10, 0.9,
			sqlmock.AnyArg(), []byte(`[1]`), "out/FB13/net", rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Save(context.Background(), rec))
}

func (s *RunRepoTestSuite) TestSave_RequiresID() {
	err := s.repo.Save(context.Background(), &run.Record{})
	s.True(apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func (s *RunRepoTestSuite) TestSave_DBError() {
	s.mock.ExpectExec("INSERT INTO validation_runs").WillReturnError(errors.New("connection reset"))
	err := s.repo.Save(context.Background(), sampleRecord())
	s.True(apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
}

func (s *RunRepoTestSuite) TestGet_Found() {
	rec := sampleRecord()
	rows := sqlmock.NewRows(columns).AddRow(rec.ID, rec.Dataset, rec.NetName, rec.Epoch, rec.ModelID, rec.Backend,
		rec.Start, rec.End, rec.Correct, rec.Total, rec.Accuracy,
		[]byte(`[{"relation":0,"name":"knows","margin":3,"correct":9,"total":10,"accuracy":0.9}]`), []byte(`[1]`),
		rec.ReportDir, rec.StartedAt, rec.FinishedAt)
	s.mock.ExpectQuery("SELECT .* FROM validation_runs WHERE id = \\$1").WithArgs(rec.ID).WillReturnRows(rows)

	got, err := s.repo.Get(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Equal(rec, got)
}

func (s *RunRepoTestSuite) TestGet_NotFound() {
	s.mock.ExpectQuery("SELECT .* FROM validation_runs").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err := s.repo.Get(context.Background(), "missing")
	s.True(apperrors.IsCode(err, apperrors.ErrCodeRunNotFound))
}

func (s *RunRepoTestSuite) TestList_FilterAndPaging() {
	rec := sampleRecord()
	rows := sqlmock.NewRows(columns).AddRow(rec.ID, rec.Dataset, rec.NetName, rec.Epoch, rec.ModelID, rec.Backend,
		rec.Start, rec.End, rec.Correct, rec.Total, rec.Accuracy, []byte(`[]`), []byte(`[]`),
		rec.ReportDir, rec.StartedAt, rec.FinishedAt)
	s.mock.ExpectQuery("WHERE dataset = \\$1 AND net_name = \\$2 ORDER BY finished_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("FB13", "net", maxListLimit, 0).
		WillReturnRows(rows)

	got, err := s.repo.List(context.Background(), run.ListFilter{Dataset: "FB13", NetName: "net", Limit: 10000, Offset: -5})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Empty(got[0].Relations)
	s.Equal(300, got[0].Epoch)
}

func (s *RunRepoTestSuite) TestList_Defaults() {
	s.mock.ExpectQuery("FROM validation_runs ORDER BY finished_at DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(defaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows(columns))

	got, err := s.repo.List(context.Background(), run.ListFilter{})
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func TestScanRun_MalformedJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(columns).AddRow("id", "d", "n", 1, "m", "local", 0, 1, 0, 0, 0.0,
		[]byte(`{`), []byte(`[]`), "", now, now))

	_, err = scanRun(db.QueryRow("SELECT"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))
}
