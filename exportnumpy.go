package epitools

import (
	"io"
	"strconv"

	"github.com/kshedden/gonpy"
)

// writeNumpyMatrix writes the bucket columns of m as a rows x buckets
// float64 array. Cells that do not parse as numbers are written as
// 0.
func writeNumpyMatrix(fnm string, m *Table, buckets []string) error {
	data, rows, cols, err := matrix2array(m, buckets)
	if err != nil {
		return err
	}
	return writeOutput(fnm, nil, func(w io.Writer) error {
		npw, err := gonpy.NewWriter(nopCloser{w})
		if err != nil {
			return err
		}
		npw.Shape = []int{rows, cols}
		return npw.WriteFloat64(data)
	})
}

func matrix2array(m *Table, buckets []string) (data []float64, rows, cols int, err error) {
	idx, err := m.ColumnIndexes(buckets)
	if err != nil {
		return nil, 0, 0, err
	}
	rows, cols = len(m.Rows), len(idx)
	data = make([]float64, rows*cols)
	for r, row := range m.Rows {
		for c, col := range idx {
			v, err := strconv.ParseFloat(row[col], 64)
			if err == nil {
				data[r*cols+c] = v
			}
		}
	}
	return data, rows, cols, nil
}
