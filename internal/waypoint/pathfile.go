package waypoint

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/waypoints/internal/geom"
)

// ErrEndOfPath means the persisted path holds no further rows: the file is
// missing, empty, or only has its header.
var ErrEndOfPath = errors.New("end of path")

// ErrMalformedRow is wrapped by decode failures of a single row.
var ErrMalformedRow = errors.New("malformed path row")

// header is the first record of every persisted path.
var header = []string{"x", "y", "z", "qx", "qy", "qz", "qw"}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func encodeRecord(p geom.Pose) []string {
	return []string{
		formatFloat(p.Position.X),
		formatFloat(p.Position.Y),
		formatFloat(p.Position.Z),
		formatFloat(p.Orientation.X),
		formatFloat(p.Orientation.Y),
		formatFloat(p.Orientation.Z),
		formatFloat(p.Orientation.W),
	}
}

func decodeRecord(rec []string) (geom.Pose, error) {
	if len(rec) != len(header) {
		return geom.Pose{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedRow, len(header), len(rec))
	}
	var vals [7]float64
	for i, field := range rec {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return geom.Pose{}, fmt.Errorf("%w: field %s: %v", ErrMalformedRow, header[i], err)
		}
		vals[i] = v
	}
	return geom.Pose{
		Position:    geom.Point{X: vals[0], Y: vals[1], Z: vals[2]},
		Orientation: geom.Quaternion{X: vals[3], Y: vals[4], Z: vals[5], W: vals[6]},
	}, nil
}

// EncodePath renders the header followed by one row per pose.
func EncodePath(poses []geom.Pose) ([]byte, error) {
	records := make([][]string, 0, len(poses)+1)
	records = append(records, header)
	for _, p := range poses {
		records = append(records, encodeRecord(p))
	}
	return writeRecords(records)
}

func writeRecords(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("encode path: %w", err)
	}
	return buf.Bytes(), nil
}

// readRecords returns the data records after the header. Field counts are
// not enforced here so a single bad row can be reported by decodeRecord.
func readRecords(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = false

	var records [][]string
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
		}
		if first {
			first = false
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodePath parses every data row. The first malformed row stops decoding.
func DecodePath(data []byte) ([]geom.Pose, error) {
	records, err := readRecords(data)
	if err != nil {
		return nil, err
	}
	poses := make([]geom.Pose, 0, len(records))
	for i, rec := range records {
		p, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		poses = append(poses, p)
	}
	return poses, nil
}
