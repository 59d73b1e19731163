package reporting

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/kgeval/internal/domain/graph"
	"github.com/turtacn/kgeval/internal/domain/margin"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) UploadFile(ctx context.Context, localPath, objectKey string) error {
	return m.Called(ctx, localPath, objectKey).Error(0)
}

func sampleResult(t *testing.T) (*margin.Result, *graph.Vocabulary) {
	t.Helper()
	rels, err := graph.NewVocabulary([]string{"gender", "nationality", "profession"})
	require.NoError(t, err)

	b := margin.NewBuckets()
	b.Add(0, graph.Positive, 1)
	b.Add(0, graph.Positive, 2)
	b.Add(0, graph.Negative, 50)
	b.Add(2, graph.Positive, 3.5)
	b.Add(2, graph.Negative, 0.5)

	res, err := margin.Search(b, 3, 0, 5)
	require.NoError(t, err)
	return res, rels
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriter_WriteAll(t *testing.T) {
	res, rels := sampleResult(t)
	dir := filepath.Join(t.TempDir(), "FB13", "50-1-100(0.0001-1000)-bern", "valid")

	w, err := NewWriter(dir, rels, logging.NewNopLogger())
	require.NoError(t, err)

	files, err := w.WriteAll(300, res)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t,
		"0\t5\n"+
			"gender\t0.3333\t0.3333\t0.6667\t1.0000\t1.0000\n"+
			"profession\t0.5000\t0.0000\t0.0000\t0.0000\t0.5000\n",
		readFile(t, filepath.Join(dir, "300.txt")))

	assert.Equal(t, "gender\t3\nprofession\t0\n", readFile(t, filepath.Join(dir, "margin-300.txt")))

	assert.Equal(t, "300\t0.8000\n", readFile(t, filepath.Join(dir, "valid.txt")))
}

func TestWriter_SummaryAppendsAcrossEpochs(t *testing.T) {
	res, rels := sampleResult(t)
	w, err := NewWriter(t.TempDir(), rels, nil)
	require.NoError(t, err)

	_, err = w.WriteAll(100, res)
	require.NoError(t, err)
	_, err = w.WriteAll(200, res)
	require.NoError(t, err)
	// rewriting an epoch truncates its own files
	_, err = w.WriteAll(200, res)
	require.NoError(t, err)

	assert.Equal(t, "100\t0.8000\n200\t0.8000\n200\t0.8000\n", readFile(t, filepath.Join(w.Dir(), SummaryFile)))
	assert.Equal(t, "gender\t3\nprofession\t0\n", readFile(t, filepath.Join(w.Dir(), MarginsFile(200))))
}

func TestWriter_UnknownRelationNameFallsBackToID(t *testing.T) {
	res := &margin.Result{Start: 1, End: 2, Relations: []margin.RelationResult{{Relation: 9, Counts: []int{1}, BestMargin: 1, BestCorrect: 1, Total: 1}}}
	w, err := NewWriter(t.TempDir(), nil, nil)
	require.NoError(t, err)

	path, err := w.WriteMargins(1, res)
	require.NoError(t, err)
	assert.Equal(t, "9\t1\n", readFile(t, path))
}

func TestNewWriter_UnwritableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewWriter(filepath.Join(blocker, "valid"), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeReportWriteFailed))
}

func TestFormatSummary(t *testing.T) {
	assert.Equal(t, "300\t1.0000", FormatSummary(300, 1))
	assert.Equal(t, "7\t0.1235", FormatSummary(7, 0.123456))
}

func TestPublish(t *testing.T) {
	up := new(MockUploader)
	up.On("UploadFile", mock.Anything, "/tmp/r/300.txt", "FB13/net/valid/300.txt").Return(nil).Once()
	up.On("UploadFile", mock.Anything, "/tmp/r/valid.txt", "FB13/net/valid/valid.txt").Return(stderrors.New("denied")).Once()

	err := Publish(context.Background(), up, "FB13/net/valid", []string{"/tmp/r/300.txt", "/tmp/r/valid.txt", "/tmp/r/never.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FB13/net/valid/valid.txt")
	up.AssertExpectations(t)
}
