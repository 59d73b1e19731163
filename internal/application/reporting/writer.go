// Package reporting serialises margin-search results as the tab-separated
// report files kept next to each trained model.
package reporting

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/turtacn/kgeval/internal/domain/margin"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// SummaryFile collects one line per evaluated epoch.
const SummaryFile = "valid.txt"

// CurvesFile names the per-relation accuracy curve file of epoch.
func CurvesFile(epoch int) string { return fmt.Sprintf("%d.txt", epoch) }

// MarginsFile names the per-relation best-margin file of epoch.
func MarginsFile(epoch int) string { return fmt.Sprintf("margin-%d.txt", epoch) }

// FormatSummary renders "epoch<TAB>accuracy" with four decimals.
func FormatSummary(epoch int, accuracy float64) string {
	return fmt.Sprintf("%d\t%.4f", epoch, accuracy)
}

// NameResolver maps relation ids to names.
type NameResolver interface {
	Name(id int) (string, bool)
}

// Uploader publishes a written report file.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, objectKey string) error
}

// Writer writes the report files of one model directory.
type Writer struct {
	dir    string
	names  NameResolver
	logger logging.Logger
}

// NewWriter creates dir when missing.
func NewWriter(dir string, names NameResolver, logger logging.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeReportWriteFailed, "create report directory").WithDetail(dir)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Writer{dir: dir, names: names, logger: logger}, nil
}

// Dir is the report directory.
func (w *Writer) Dir() string { return w.dir }

// WriteCurves writes "<epoch>.txt": a "start<TAB>end" header, then per
// relation its name and correct/total for every candidate margin.
func (w *Writer) WriteCurves(epoch int, res *margin.Result) (string, error) {
	path := filepath.Join(w.dir, CurvesFile(epoch))
	err := w.writeFile(path, os.O_TRUNC, func(bw *bufio.Writer) error {
		if _, err := fmt.Fprintf(bw, "%d\t%d\n", res.Start, res.End); err != nil {
			return err
		}
		for i := range res.Relations {
			rr := &res.Relations[i]
			if _, err := bw.WriteString(w.relationName(rr.Relation)); err != nil {
				return err
			}
			for _, acc := range rr.Accuracy() {
				if _, err := fmt.Fprintf(bw, "\t%.4f", acc); err != nil {
					return err
				}
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
	return path, err
}

// WriteMargins writes "margin-<epoch>.txt": "name<TAB>best_margin" per relation.
func (w *Writer) WriteMargins(epoch int, res *margin.Result) (string, error) {
	path := filepath.Join(w.dir, MarginsFile(epoch))
	err := w.writeFile(path, os.O_TRUNC, func(bw *bufio.Writer) error {
		for i := range res.Relations {
			rr := &res.Relations[i]
			if _, err := fmt.Fprintf(bw, "%s\t%d\n", w.relationName(rr.Relation), rr.BestMargin); err != nil {
				return err
			}
		}
		return nil
	})
	return path, err
}

// AppendSummary appends the epoch's summary line to valid.txt.
func (w *Writer) AppendSummary(epoch int, accuracy float64) (string, error) {
	path := filepath.Join(w.dir, SummaryFile)
	err := w.writeFile(path, os.O_APPEND, func(bw *bufio.Writer) error {
		_, err := bw.WriteString(FormatSummary(epoch, accuracy) + "\n")
		return err
	})
	return path, err
}

// WriteAll writes the three report files and returns their paths.
func (w *Writer) WriteAll(epoch int, res *margin.Result) ([]string, error) {
	curves, err := w.WriteCurves(epoch, res)
	if err != nil {
		return nil, err
	}
	margins, err := w.WriteMargins(epoch, res)
	if err != nil {
		return nil, err
	}
	summary, err := w.AppendSummary(epoch, res.Accuracy)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("reports written", logging.String("dir", w.dir), logging.Int("epoch", epoch))
	return []string{curves, margins, summary}, nil
}

// Publish uploads files under prefix.  It stops at the first failure.
func Publish(ctx context.Context, up Uploader, prefix string, files []string) error {
	for _, f := range files {
		key := filepath.ToSlash(filepath.Join(prefix, filepath.Base(f)))
		if err := up.UploadFile(ctx, f, key); err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "publish report").WithDetail(key)
		}
	}
	return nil
}

func (w *Writer) relationName(id int) string {
	if w.names != nil {
		if name, ok := w.names.Name(id); ok {
			return name
		}
	}
	return fmt.Sprintf("%d", id)
}

func (w *Writer) writeFile(path string, mode int, fill func(*bufio.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "open report").WithDetail(path)
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "write report").WithDetail(path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "flush report").WithDetail(path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeReportWriteFailed, "close report").WithDetail(path)
	}
	return nil
}
