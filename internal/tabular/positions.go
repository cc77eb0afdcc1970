package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"bioval/pkg/domain"
)

// PositionHeaders is the column order of an available-positions file.
var PositionHeaders = []string{"pos", "box", "rack", "freezer"}

// WritePositions writes one line per coordinate, in the given order.
func WritePositions(w io.Writer, coords []domain.Coordinate) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(PositionHeaders); err != nil {
		return err
	}
	for _, c := range coords {
		if err := writer.Write([]string{c.Position, c.Box, c.Rack, c.Freezer}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// EncodePositions renders WritePositions into a byte slice.
func EncodePositions(coords []domain.Coordinate) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WritePositions(buf, coords); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadPositions parses an available-positions file back into coordinates.
func ReadPositions(r io.Reader) ([]domain.Coordinate, error) {
	t, err := Read(r)
	if err != nil {
		return nil, err
	}
	if len(t.Headers) == 0 {
		return nil, errors.New("positions file has no header")
	}
	have := make(map[string]struct{}, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = struct{}{}
	}
	for _, h := range PositionHeaders {
		if _, ok := have[h]; !ok {
			return nil, fmt.Errorf("positions file missing column %q", h)
		}
	}
	out := make([]domain.Coordinate, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, domain.NewCoordinate(row["freezer"], row["rack"], row["box"], row["pos"]))
	}
	return out, nil
}
