package preparer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/nconklindev/custprep/internal/fetch"
	"github.com/nconklindev/custprep/internal/types"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultSource = "https://raw.githubusercontent.com/araj2/customer-database/master/Ecommerce%20Customers.csv"

	// LeadingColumns is how many columns are dropped from the front of the
	// source, by position.
	LeadingColumns = 3

	MembershipColumn = "Length of Membership"
	MinMembership    = 1.0
	WebsiteColumn    = "Time on Website"

	sheetName = "Sheet1"
)

var DefaultOutput = filepath.Join("data", "customer.csv")

var (
	ErrFetch  = errors.New("fetch failed")
	ErrSchema = errors.New("schema mismatch")
	ErrWrite  = errors.New("write failed")
)

// Cells matching one of these load as missing values.
var missingValues = []string{
	"", "#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan",
	"1.#IND", "1.#QNAN", "<NA>", "N/A", "NA", "NULL", "NaN", "None",
	"n/a", "nan", "null",
}

// Stage names reported on the progress channel
const (
	StageFetch  = "Fetching source"
	StageSelect = "Selecting columns"
	StageFilter = "Filtering rows"
	StageDrop   = "Dropping column"
	StageWrite  = "Writing output"
	StageDone   = "Done"
)

type Options struct {
	Source string
	Output string
	Client *http.Client
}

// Category names the failure class of an error returned by Prepare.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrWrite):
		return "write"
	default:
		return "unknown"
	}
}

// Prepare fetches the source dataset, keeps every column after the leading
// three, keeps rows whose membership length is greater than one, drops the
// website column and writes the result to opts.Output.
func Prepare(ctx context.Context, opts Options, progressChan chan<- types.Progress) (*types.PrepareResult, error) {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Output == "" {
		opts.Output = DefaultOutput
	}

	reportProgress := func(stage string, fraction float64) {
		if progressChan != nil {
			select {
			case progressChan <- types.Progress{Stage: stage, Fraction: fraction}:
			default:
			}
		}
	}

	reportProgress(StageFetch, 0)
	slog.Debug("fetching source", "source", opts.Source)
	rc, err := fetch.Open(ctx, opts.Client, opts.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	df, err := Load(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	rowsRead := df.Nrow()
	slog.Debug("source loaded", "rows", rowsRead, "columns", df.Ncol())

	reportProgress(StageSelect, 0.4)
	df, err = SelectFrom(df, LeadingColumns)
	if err != nil {
		return nil, err
	}

	reportProgress(StageFilter, 0.55)
	df, index, err := FilterGreater(df, MembershipColumn, MinMembership)
	if err != nil {
		return nil, err
	}
	slog.Debug("rows filtered", "column", MembershipColumn, "kept", len(index), "dropped", rowsRead-len(index))

	reportProgress(StageDrop, 0.7)
	df, err = DropColumn(df, WebsiteColumn)
	if err != nil {
		return nil, err
	}

	reportProgress(StageWrite, 0.85)
	table := ToTable(df, index)
	if err := Write(opts.Output, table); err != nil {
		return nil, err
	}
	reportProgress(StageDone, 1)

	return &types.PrepareResult{
		Source:      opts.Source,
		OutputFile:  opts.Output,
		Columns:     table.Headers,
		RowsRead:    rowsRead,
		RowsWritten: len(table.Rows),
	}, nil
}

// Load reads a whole CSV into memory. Headers come from the first row and
// every cell is kept as text so values are written back unchanged. A source
// with a header and no rows loads as an empty table.
func Load(r io.Reader) (dataframe.DataFrame, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%w: reading source: %w", ErrFetch, err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("%w: parsing csv: %w", ErrSchema, err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("%w: source has no header row", ErrSchema)
	}
	records[0] = dedupeHeaders(records[0])

	var df dataframe.DataFrame
	if len(records) == 1 {
		cols := make([]series.Series, len(records[0]))
		for i, name := range records[0] {
			cols[i] = series.New([]string{}, series.String, name)
		}
		df = dataframe.New(cols...)
	} else {
		df = dataframe.LoadRecords(records,
			dataframe.HasHeader(true),
			dataframe.DetectTypes(false),
			dataframe.DefaultType(series.String),
			dataframe.NaNValues(missingValues),
		)
	}
	if df.Err != nil {
		return df, fmt.Errorf("%w: loading table: %w", ErrSchema, df.Err)
	}
	return df, nil
}

// dedupeHeaders suffixes repeated column names with ".1", ".2" and so on,
// skipping any suffix that is already taken.
func dedupeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	taken := make(map[string]bool, len(headers))
	counts := make(map[string]int, len(headers))
	for i, name := range headers {
		cur := name
		for taken[cur] {
			counts[name]++
			cur = fmt.Sprintf("%s.%d", name, counts[name])
		}
		taken[cur] = true
		out[i] = cur
	}
	return out
}

// SelectFrom keeps the columns at index start and beyond.
func SelectFrom(df dataframe.DataFrame, start int) (dataframe.DataFrame, error) {
	if df.Ncol() <= start {
		return df, fmt.Errorf("%w: expected more than %d columns, got %d", ErrSchema, start, df.Ncol())
	}

	idx := make([]int, 0, df.Ncol()-start)
	for i := start; i < df.Ncol(); i++ {
		idx = append(idx, i)
	}

	out := df.Select(idx)
	if out.Err != nil {
		return df, fmt.Errorf("%w: %w", ErrSchema, out.Err)
	}
	return out, nil
}

// FilterGreater keeps the rows whose value in column is strictly greater than
// threshold. Missing values never pass. It returns the positions of the kept
// rows within df alongside the filtered frame.
func FilterGreater(df dataframe.DataFrame, column string, threshold float64) (dataframe.DataFrame, []int, error) {
	if !slices.Contains(df.Names(), column) {
		return df, nil, fmt.Errorf("%w: column %q not found", ErrSchema, column)
	}

	col := df.Col(column)
	kept := make([]int, 0, col.Len())
	for i := 0; i < col.Len(); i++ {
		el := col.Elem(i)
		raw := strings.TrimSpace(el.String())
		if el.IsNA() || raw == "" {
			continue
		}
		val, err := parseNumber(raw)
		if err != nil {
			return df, nil, fmt.Errorf("%w: column %q row %d: %q is not numeric", ErrSchema, column, i, el.String())
		}
		if val > threshold {
			kept = append(kept, i)
		}
	}

	out := df.Subset(kept)
	if out.Err != nil {
		return df, nil, fmt.Errorf("%w: %w", ErrSchema, out.Err)
	}
	return out, kept, nil
}

// parseNumber parses a decimal number. Hex floats and digit separators are
// text, not numbers.
func parseNumber(s string) (float64, error) {
	if strings.ContainsAny(s, "_xX") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

func DropColumn(df dataframe.DataFrame, column string) (dataframe.DataFrame, error) {
	if !slices.Contains(df.Names(), column) {
		return df, fmt.Errorf("%w: column %q not found", ErrSchema, column)
	}

	out := df.Drop(column)
	if out.Err != nil {
		return df, fmt.Errorf("%w: %w", ErrSchema, out.Err)
	}
	return out, nil
}

// ToTable flattens df into rows of text. Missing values become empty cells.
func ToTable(df dataframe.DataFrame, index []int) *types.Table {
	headers := df.Names()
	cols := make([]series.Series, len(headers))
	for i, name := range headers {
		cols[i] = df.Col(name)
	}

	rows := make([][]string, df.Nrow())
	for r := range rows {
		row := make([]string, len(cols))
		for c, col := range cols {
			el := col.Elem(r)
			if !el.IsNA() {
				row[c] = el.String()
			}
		}
		rows[r] = row
	}

	return &types.Table{
		Headers: headers,
		Index:   index,
		Rows:    rows,
	}
}

// Write persists t to path, creating the parent directory when needed. The
// format follows the extension: .xlsx writes a workbook, anything else CSV.
// Both start with an index column whose header cell is empty.
func Write(path string, t *types.Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = writeXLSX(path, t)
	default:
		err = writeCSV(path, t)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func writeCSV(path string, t *types.Table) error {
	outFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer outFile.Close()

	writer := csv.NewWriter(outFile)
	if err := writer.Write(append([]string{""}, t.Headers...)); err != nil {
		return err
	}
	for i, row := range t.Rows {
		record := make([]string, 0, len(row)+1)
		record = append(record, strconv.Itoa(t.Index[i]))
		record = append(record, row...)
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	return outFile.Close()
}

func writeXLSX(path string, t *types.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, 0, len(t.Headers)+1)
	header = append(header, "")
	for _, h := range t.Headers {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}

	for i, row := range t.Rows {
		values := make([]interface{}, 0, len(row)+1)
		values = append(values, t.Index[i])
		for _, cell := range row {
			if v, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
				values = append(values, v)
			} else {
				values = append(values, cell)
			}
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}
