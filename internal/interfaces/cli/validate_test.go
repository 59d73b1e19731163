package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/kgeval/internal/domain/run"
	apperrors "github.com/turtacn/kgeval/pkg/errors"
)

// toyCheckpoint embeds e0..e3 at 0, 1, 2 and 50 on a line with zero
// relation and context vectors, so positives (tails e1, e2) sit within
// distance 2 of any head and the negative (tail e3) is at least 49 away.
const toyCheckpoint = `{"dim":1,
"entities":[[0],[1],[2],[50],[0]],
"relations":[[0],[0]],
"context":[[0],[0],[0],[0],[0],[0],[0]]}`

type toyFixture struct {
	root       string
	outRoot    string
	checkpoint string
}

func newToyFixture(t *testing.T) toyFixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "toy")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	files := map[string]string{
		"entity2id.txt":   "e0\t0\ne1\t1\ne2\t2\ne3\t3\n",
		"relation2id.txt": "A\t0\nB\t1\n",
		"train.txt":       "e0\tA\te1\ne1\tB\te2\n",
		"valid.txt":       "e0\tA\te1\t1\ne0\tA\te2\t1\ne0\tA\te3\t-1\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	ckpt := filepath.Join(root, "net-300.json")
	require.NoError(t, os.WriteFile(ckpt, []byte(toyCheckpoint), 0o644))
	return toyFixture{root: root, outRoot: filepath.Join(root, "out"), checkpoint: ckpt}
}

func (f toyFixture) args(cmd string, extra ...string) []string {
	args := []string{cmd,
		"--data-root", f.root,
		"--data", "toy",
		"--out-root", f.outRoot,
		"--checkpoint", f.checkpoint,
		"--end", "5",
		"--seed", "7",
	}
	return append(args, extra...)
}

// epochCheckpoints copies the toy checkpoint to net-<epoch>.json for each
// epoch and returns the placeholder path covering them.
func (f toyFixture) epochCheckpoints(t *testing.T, epochs ...int) string {
	t.Helper()
	for _, e := range epochs {
		path := filepath.Join(f.root, "net-"+strconv.Itoa(e)+".json")
		require.NoError(t, os.WriteFile(path, []byte(toyCheckpoint), 0o644))
	}
	return filepath.Join(f.root, "net-{epoch}.json")
}

func (f toyFixture) reportDir(t *testing.T) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.outRoot, "toy", "*", "valid"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestValidateCommand_TextOutput(t *testing.T) {
	fx := newToyFixture(t)

	out, err := execute(t, fx.args("validate", "--epoch", "300")...)
	require.NoError(t, err)
	assert.Equal(t, "300\t1.0000\n", out)

	dir := fx.reportDir(t)
	for _, name := range []string{"300.txt", "margin-300.txt", "valid.txt"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	summary, err := os.ReadFile(filepath.Join(dir, "valid.txt"))
	require.NoError(t, err)
	assert.Equal(t, "300\t1.0000\n", string(summary))
}

func TestValidateCommand_JSONOutput(t *testing.T) {
	fx := newToyFixture(t)

	out, err := execute(t, fx.args("validate", "--epoch", "300", "-o", "json")...)
	require.NoError(t, err)

	var rec run.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "toy", rec.Dataset)
	assert.Equal(t, 300, rec.Epoch)
	assert.Equal(t, 1.0, rec.Accuracy)
	assert.Equal(t, []int{1}, rec.Skipped)
	require.Len(t, rec.Relations, 1)
	assert.Equal(t, "A", rec.Relations[0].Name)
}

func TestValidateCommand_TableOutput(t *testing.T) {
	fx := newToyFixture(t)

	out, err := execute(t, fx.args("validate", "--epoch", "300", "-o", "table")...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "EPOCH"))
	assert.True(t, strings.HasPrefix(lines[2], "300    A"))
	assert.Contains(t, lines[3], "(all)")
	assert.Contains(t, lines[3], "1.0000")
}

func TestValidateCommand_MissingDataset(t *testing.T) {
	fx := newToyFixture(t)
	_, err := execute(t, fx.args("validate", "--data", "nope")...)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatasetNotFound))
}

func TestValidateCommand_MissingCheckpoint(t *testing.T) {
	fx := newToyFixture(t)
	_, err := execute(t, fx.args("validate", "--checkpoint", filepath.Join(fx.root, "missing.json"))...)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCheckpointNotFound))
}

func TestValidateCommand_MetricsTextfile(t *testing.T) {
	fx := newToyFixture(t)
	prom := filepath.Join(fx.root, "kgeval.prom")
	t.Setenv("KGEVAL_METRICS_TEXTFILE_PATH", prom)

	_, err := execute(t, fx.args("validate", "--epoch", "300")...)
	require.NoError(t, err)

	body, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(body), `kgeval_run_accuracy{dataset="toy"`)
}

func TestSweepCommand(t *testing.T) {
	fx := newToyFixture(t)

	pattern := fx.epochCheckpoints(t, 100, 200, 300)

	out, err := execute(t, fx.args("sweep", "--from", "100", "--to", "300", "--step", "100", "--checkpoint", pattern)...)
	require.NoError(t, err)
	assert.Equal(t, "100\t1.0000\n200\t1.0000\n300\t1.0000\n", out)

	summary, err := os.ReadFile(filepath.Join(fx.reportDir(t), "valid.txt"))
	require.NoError(t, err)
	assert.Equal(t, out, string(summary))
}

func TestSweepCommand_RejectsPinnedCheckpoint(t *testing.T) {
	fx := newToyFixture(t)
	_, err := execute(t, fx.args("sweep", "--from", "100", "--to", "300", "--step", "100")...)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
	written, globErr := filepath.Glob(filepath.Join(fx.outRoot, "toy", "*", "valid", "*.txt"))
	require.NoError(t, globErr)
	assert.Empty(t, written)
}

func TestSweepCommand_MissingEpochCheckpoint(t *testing.T) {
	fx := newToyFixture(t)
	pattern := fx.epochCheckpoints(t, 100)
	out, err := execute(t, fx.args("sweep", "--from", "100", "--to", "200", "--step", "100", "--checkpoint", pattern)...)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCheckpointNotFound))
	assert.Equal(t, "100\t1.0000\n", out)
}

func TestSweepCommand_RequiresTo(t *testing.T) {
	fx := newToyFixture(t)
	_, err := execute(t, fx.args("sweep", "--from", "1")...)
	assert.Error(t, err)
}

func TestSweepCommand_BadStep(t *testing.T) {
	fx := newToyFixture(t)
	_, err := execute(t, fx.args("sweep", "--from", "1", "--to", "3", "--step", "0")...)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestRunTable_Rows(t *testing.T) {
	tbl := runTable{{
		Epoch: 7, Correct: 3, Total: 4, Accuracy: 0.75,
		Relations: []run.RelationOutcome{{Name: "A", Margin: 2, Correct: 3, Total: 4, Accuracy: 0.75}},
	}}
	assert.Equal(t, [][]string{
		{"7", "A", "2", "3", "4", "0.7500"},
		{"7", "(all)", "", "3", "4", "0.7500"},
	}, tbl.TableRows())
}
