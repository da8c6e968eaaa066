// Package fieldmap maps CSV columns to order and product fields through
// static typed tables, one per record kind.
package fieldmap

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Row is one CSV data row keyed by lowercased header name.
type Row map[string]string

// Has reports whether the column was present in the header.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

const dateTimeLayout = "2006-01-02 15:04:05"

// ReadRows parses a CSV document whose first row is a header.
func ReadRows(src io.Reader) ([]Row, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("csv file is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv row %d", len(rows)+2)
		}
		if blank(record) {
			continue
		}
		row := make(Row, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteRows writes rows to dst, preceded by header when it is non-nil.
func WriteRows(dst io.Writer, header []string, rows [][]string) error {
	w := csv.NewWriter(dst)
	if header != nil {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on", "y":
		return true
	default:
		return false
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseMoney(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.Errorf("invalid amount %q", v)
	}
	return f, nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func parseInt(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", v)
	}
	return n, nil
}

func parseTime(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{dateTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, errors.Errorf("invalid date %q", v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateTimeLayout)
}

// splitList splits a multi-value cell on "|", falling back to "," for
// files produced by other tools.
func splitList(v string) []string {
	sep := "|"
	if !strings.Contains(v, sep) {
		sep = ","
	}
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, "|")
}
