// Package export flattens the stored transcription hierarchy into a
// spreadsheet for offline review: one row per transcription, optionally
// narrowed to a manager, a specialist, or valid calls only.
package export

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/Azure-Samples/tayra/internal/types"
)

const sheetName = "Transcriptions"

var header = []string{
	"Manager", "Specialist", "Filename", "Transcription",
	"Valid Call", "Failure Reason", "File Size", "Duration (s)",
}

// RecordSource yields stored manager records, optionally filtered by name.
type RecordSource interface {
	Managers(ctx context.Context, name string) ([]types.ManagerRecord, error)
}

// Options narrows the export.
type Options struct {
	Manager    string
	Specialist string
	OnlyValid  bool
}

type Exporter struct {
	source RecordSource
	log    *logrus.Entry
}

func NewExporter(source RecordSource, log *logrus.Entry) *Exporter {
	return &Exporter{source: source, log: log}
}

// WriteXLSX writes the report to path and returns the number of rows.
func (e *Exporter) WriteXLSX(ctx context.Context, path string, opts Options) (int, error) {
	records, err := e.source.Managers(ctx, opts.Manager)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	row := 2
	for _, manager := range records {
		for _, specialist := range manager.Assistants {
			if opts.Specialist != "" && specialist.Name != opts.Specialist {
				continue
			}
			for _, leaf := range specialist.Transcriptions {
				if opts.OnlyValid && leaf.IsValidCall != types.ValidCallYes {
					continue
				}
				if err := e.writeRow(f, row, manager.Name, specialist.Name, leaf); err != nil {
					return 0, err
				}
				row++
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	rows := row - 2
	e.log.WithField("rows", rows).WithField("output", path).Info("export complete")
	return rows, nil
}

func (e *Exporter) writeRow(f *excelize.File, row int, manager, specialist string, leaf types.TranscriptionLeaf) error {
	values := []interface{}{
		manager,
		specialist,
		leaf.Filename,
		leaf.Transcription,
		leaf.IsValidCall,
		leaf.FailureReason,
		leaf.Metadata["file_size"],
		leaf.Metadata["transcription_duration"],
	}
	for col, value := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	return nil
}
