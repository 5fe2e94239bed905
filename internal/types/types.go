package types

type PrepareResult struct {
	Source      string
	OutputFile  string
	Columns     []string
	RowsRead    int
	RowsWritten int
}

// Table is a prepared dataset ready to be written. Index holds each row's
// 0-based position in the source file.
type Table struct {
	Headers []string
	Index   []int
	Rows    [][]string
}

// Progress reports how far a run has come and which step it is on.
type Progress struct {
	Stage    string
	Fraction float64
}
