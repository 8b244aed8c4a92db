package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoWrapperColumn is returned for a summary without a wrapper_id column.
var ErrNoWrapperColumn = errors.New("summary missing wrapper_id column")

// Columns is the full header of the summary artifact.
func Columns() []string {
	return append([]string{ColumnWrapperID}, MetricNames...)
}

// FormatValue renders a metric with three decimals, or "" when absent.
func FormatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}

// ParseValue parses a metric cell. Empty or malformed cells are absent.
func ParseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Encode writes rows as CSV with a header line.
func Encode(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns()); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.WrapperID}
		for _, name := range MetricNames {
			v, _ := r.Metric(name)
			record = append(record, FormatValue(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads rows written by Encode. Columns are matched by header name;
// unknown columns are ignored and missing metric columns are absent.
func Decode(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoWrapperColumn
	}
	if err != nil {
		return nil, err
	}

	idCol := -1
	metricCols := make(map[int]string)
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == ColumnWrapperID {
			idCol = i
			continue
		}
		for _, m := range MetricNames {
			if name == m {
				metricCols[i] = name
			}
		}
	}
	if idCol < 0 {
		return nil, ErrNoWrapperColumn
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if idCol >= len(record) || strings.TrimSpace(record[idCol]) == "" {
			continue
		}
		row := Row{WrapperID: strings.TrimSpace(record[idCol])}
		for i, name := range metricCols {
			if i < len(record) {
				row.setMetric(name, ParseValue(record[i]))
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCSV writes the summary artifact at path.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads the summary artifact at path.
func ReadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}
