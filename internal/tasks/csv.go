// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package tasks

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"
)

// dtype is a CSV column type, used to keep exports compact: integer
// columns print undecorated, everything else prints as %.4g floats.
type dtype int

const (
	dtFloat32 dtype = iota
	dtBool
	dtUint8
	dtUint16
	dtUint32
	dtInt8
	dtInt16
	dtInt32
)

// dtypeScanLimit bounds the inference sample per column. Values past
// the sample that fall outside the inferred range trigger a full
// re-scan.
const dtypeScanLimit = 10000

const intTolerance = 1e-9

// inferDType picks the narrowest type covering up to limit leading
// values of col; limit <= 0 scans everything.
func inferDType(col []float64, limit int) dtype {
	if limit <= 0 || limit > len(col) {
		limit = len(col)
	}

	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range col[:limit] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dtFloat32
		}
		r := math.Round(v)
		if math.Abs(v-r) > intTolerance {
			return dtFloat32
		}
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}
	if limit == 0 {
		return dtFloat32
	}

	if min >= 0 {
		switch {
		case max <= 1:
			return dtBool
		case max <= 255:
			return dtUint8
		case max <= 65535:
			return dtUint16
		case max <= 4294967295:
			return dtUint32
		}
	}
	if min >= -128 && max <= 127 {
		return dtInt8
	}
	if min >= -32768 && max <= 32767 {
		return dtInt16
	}
	if min >= -2147483648 && max <= 2147483647 {
		return dtInt32
	}
	return dtFloat32
}

// fits reports whether v prints losslessly under dt.
func fits(dt dtype, v float64) bool {
	if dt == dtFloat32 {
		return true
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	r := math.Round(v)
	if math.Abs(v-r) > intTolerance {
		return false
	}
	switch dt {
	case dtBool:
		return r >= 0 && r <= 1
	case dtUint8:
		return r >= 0 && r <= 255
	case dtUint16:
		return r >= 0 && r <= 65535
	case dtUint32:
		return r >= 0 && r <= 4294967295
	case dtInt8:
		return r >= -128 && r <= 127
	case dtInt16:
		return r >= -32768 && r <= 32767
	default:
		return r >= -2147483648 && r <= 2147483647
	}
}

// appendValue prints one cell.
func appendValue(buf []byte, dt dtype, v float64) []byte {
	if dt == dtFloat32 {
		return strconv.AppendFloat(buf, float64(float32(v)), 'g', 4, 32)
	}
	return strconv.AppendInt(buf, int64(math.Round(v)), 10)
}

// csvHeaderCell quotes a header cell when it holds a separator, quote
// or newline. Sample cells are numeric and never need quoting.
func csvHeaderCell(name string) string {
	if !strings.ContainsAny(name, ";\"\n\r") {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// writeCSV streams the column matrix to path: semicolon separator, one
// header row, %.4g floats, undecorated integers. Column 0 is the time
// axis and always prints as float. Types are inferred over the leading
// sample of each column and widened by a full re-scan when a later
// value falls outside the inferred range. Rows are flushed in chunks of
// chunkRows; onChunk, when set, observes (written, total) rows.
func writeCSV(path string, header []string, cols [][]float64, chunkRows int, onChunk func(written, total int)) error {
	if len(cols) == 0 || len(cols) != len(header) {
		return Error.New("column/header shape mismatch")
	}
	rows := len(cols[0])
	for _, c := range cols[1:] {
		if len(c) != rows {
			return Error.New("ragged columns")
		}
	}
	if chunkRows <= 0 {
		chunkRows = 100000
	}

	dtypes := make([]dtype, len(cols))
	for i, c := range cols {
		if i == 0 {
			dtypes[i] = dtFloat32
			continue
		}
		dtypes[i] = inferDType(c, dtypeScanLimit)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return Error.Wrap(err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	werr := func() error {
		cells := make([]string, len(header))
		for i, h := range header {
			cells[i] = csvHeaderCell(h)
		}
		if _, err := w.WriteString(strings.Join(cells, ";") + "\n"); err != nil {
			return err
		}

		buf := make([]byte, 0, 32*len(cols))
		for start := 0; start < rows; start += chunkRows {
			end := start + chunkRows
			if end > rows {
				end = rows
			}
			for r := start; r < end; r++ {
				buf = buf[:0]
				for ci, c := range cols {
					if ci > 0 {
						buf = append(buf, ';')
					}
					v := c[r]
					if !fits(dtypes[ci], v) {
						dtypes[ci] = inferDType(c, 0)
					}
					buf = appendValue(buf, dtypes[ci], v)
				}
				buf = append(buf, '\n')
				if _, err := w.Write(buf); err != nil {
					return err
				}
			}
			if onChunk != nil {
				onChunk(end, rows)
			}
		}
		return w.Flush()
	}()

	cerr := f.Close()
	if werr != nil {
		return Error.Wrap(werr)
	}
	return Error.Wrap(cerr)
}
