// Package psv parses the pipe-separated-values tabular format used by NGDP
// version servers: a typed header line, optional "## seqn = N" directive,
// and positional data rows.
package psv

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/keg/pkg/kegerr"
)

// Column describes one header column: its clean name plus the optional
// type annotation (e.g. "BuildConfig!HEX:32" -> Name="BuildConfig",
// Type="HEX", Width=32).
type Column struct {
	Name  string
	Type  string
	Width int
}

// Row is one data row, addressable by clean column name.
type Row struct {
	file   *File
	values []string
}

// Get returns the value of the named column (case-insensitive), and
// whether that column exists.
func (r Row) Get(name string) (string, bool) {
	idx, ok := r.file.index[strings.ToLower(name)]
	if !ok || idx >= len(r.values) {
		return "", false
	}
	return r.values[idx], true
}

// GetOr returns the named column's value or def if the column is absent.
func (r Row) GetOr(name, def string) string {
	if v, ok := r.Get(name); ok {
		return v
	}
	return def
}

// Values returns the row's raw positional values.
func (r Row) Values() []string { return r.values }

// File is a fully parsed PSV document.
type File struct {
	RawHeader []string
	Header    []Column
	Rows      []Row
	Seqn      int

	index map[string]int // lowercased clean column name -> position
}

var seqnPrefix = "## seqn = "

// Parse reads a PSV document from r.
func Parse(r io.Reader) (*File, error) {
	f := &File{index: map[string]int{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var dataLines []string
	lineNo := 0
	haveHeader := false
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, seqnPrefix) {
				n, err := strconv.Atoi(strings.TrimSpace(line[len(seqnPrefix):]))
				if err != nil {
					return nil, &kegerr.InvalidPSV{Line: lineNo, Reason: "malformed seqn line: " + line}
				}
				if f.Seqn != 0 {
					return nil, &kegerr.InvalidPSV{Line: lineNo, Reason: "duplicate seqn line"}
				}
				f.Seqn = n
			}
			continue
		}
		if !haveHeader {
			f.RawHeader = strings.Split(line, "|")
			f.Header = make([]Column, len(f.RawHeader))
			for i, raw := range f.RawHeader {
				col := parseColumn(raw)
				f.Header[i] = col
				f.index[strings.ToLower(col.Name)] = i
			}
			haveHeader = true
			continue
		}
		dataLines = append(dataLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !haveHeader {
		return nil, &kegerr.InvalidPSV{Reason: "missing header row"}
	}

	f.Rows = make([]Row, len(dataLines))
	for i, line := range dataLines {
		f.Rows[i] = Row{file: f, values: strings.Split(line, "|")}
	}
	return f, nil
}

func parseColumn(raw string) Column {
	parts := strings.SplitN(raw, "!", 2)
	col := Column{Name: parts[0]}
	if len(parts) == 2 {
		typeParts := strings.SplitN(parts[1], ":", 2)
		col.Type = typeParts[0]
		if len(typeParts) == 2 {
			if w, err := strconv.Atoi(typeParts[1]); err == nil {
				col.Width = w
			}
		}
	}
	return col
}

// CleanHeader returns the clean (un-annotated) column names in order.
func (f *File) CleanHeader() []string {
	names := make([]string, len(f.Header))
	for i, c := range f.Header {
		names[i] = c.Name
	}
	return names
}

// HexColumns returns the clean names of columns annotated !HEX, whose
// values should be lowercased before being persisted.
func (f *File) HexColumns() []string {
	var out []string
	for _, c := range f.Header {
		if strings.EqualFold(c.Type, "HEX") {
			out = append(out, c.Name)
		}
	}
	return out
}
