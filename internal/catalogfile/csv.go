package catalogfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"softdex/internal/software"
)

// Importer is the catalog surface used by ImportCSV.
type Importer interface {
	FindOrCreate(ctx context.Context, name, source, externalID string, category software.Category) (*software.ReferenceEntry, error)
	Update(ctx context.Context, entry *software.ReferenceEntry) error
	Count(ctx context.Context) (int, error)
}

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Rows    int `json:"rows"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

const (
	colName = iota
	colSource
	colExternalID
	colCategory
	colPublisher
	colDescription
)

// ImportCSV reads rows of name,source,external_id,category,publisher,description
// and resolves each one in the catalog. Trailing columns may be omitted. A
// leading header row is detected by its first cell reading "name". Rows
// without a name or source are skipped; row-level store failures are joined
// and returned after the remaining rows are processed.
func ImportCSV(ctx context.Context, store Importer, r io.Reader) (ImportResult, error) {
	var result ImportResult
	if store == nil {
		return result, errors.New("import catalog csv: store is nil")
	}

	before, err := store.Count(ctx)
	if err != nil {
		return result, fmt.Errorf("import catalog csv: %w", err)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var errs []error
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read catalog csv: %w", err)
		}
		if first {
			first = false
			if strings.EqualFold(cell(record, colName), "name") {
				continue
			}
		}
		result.Rows++

		name, source := cell(record, colName), cell(record, colSource)
		if name == "" || source == "" {
			result.Skipped++
			continue
		}
		entry, err := store.FindOrCreate(ctx, name, source, cell(record, colExternalID), software.ParseCategory(cell(record, colCategory)))
		if err != nil {
			line, _ := reader.FieldPos(0)
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if !applyRow(entry, record) {
			continue
		}
		if err := store.Update(ctx, entry); err != nil {
			line, _ := reader.FieldPos(0)
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		result.Updated++
	}

	after, err := store.Count(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("count catalog entries: %w", err))
	} else {
		result.Created = max(after-before, 0)
	}
	return result, errors.Join(errs...)
}

// applyRow copies the descriptive columns onto entry and reports whether any
// field changed.
func applyRow(entry *software.ReferenceEntry, record []string) bool {
	changed := false
	if publisher := cell(record, colPublisher); publisher != "" && publisher != entry.Publisher {
		entry.Publisher = publisher
		changed = true
	}
	if description := cell(record, colDescription); description != "" && description != entry.Description {
		entry.Description = description
		changed = true
	}
	return changed
}

func cell(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
