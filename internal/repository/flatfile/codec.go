package flatfile

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"mood-tracker/internal/domain"
)

// Format selects the line layout of the mood file.
type Format string

const (
	// FormatKeyed writes "id,label,label,..." per user.
	FormatKeyed Format = "keyed"
	// FormatPositional writes one line per user id starting at 1; the id is implied
	// by the line number. Ids without a user are written as empty lines.
	FormatPositional Format = "positional"
)

// ParseFormat validates a configured format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatKeyed, FormatPositional:
		return f, nil
	case "":
		return FormatKeyed, nil
	default:
		return "", fmt.Errorf("unknown mood file format %q", name)
	}
}

// Encode writes records in the given format. Records are sorted by user id first.
func Encode(w io.Writer, format Format, records []domain.MoodRecord) error {
	sorted := make([]domain.MoodRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UserID < sorted[j].UserID })

	cw := csv.NewWriter(w)
	switch format {
	case FormatKeyed:
		for _, record := range sorted {
			row := make([]string, 0, len(record.Labels)+1)
			row = append(row, strconv.FormatInt(record.UserID, 10))
			row = append(row, record.Labels...)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write user %d: %w", record.UserID, err)
			}
		}
	case FormatPositional:
		var next int64 = 1
		for _, record := range sorted {
			if record.UserID < 1 {
				return fmt.Errorf("positional format cannot hold user id %d", record.UserID)
			}
			for ; next < record.UserID; next++ {
				if err := cw.Write(nil); err != nil {
					return fmt.Errorf("write gap row %d: %w", next, err)
				}
			}
			if err := cw.Write(record.Labels); err != nil {
				return fmt.Errorf("write user %d: %w", record.UserID, err)
			}
			next++
		}
	default:
		return fmt.Errorf("unknown mood file format %q", format)
	}

	cw.Flush()
	return cw.Error()
}

// Decode reads records written by Encode.
func Decode(r io.Reader, format Format) (map[int64][]string, error) {
	switch format {
	case FormatKeyed:
		return decodeKeyed(r)
	case FormatPositional:
		return decodePositional(r)
	default:
		return nil, fmt.Errorf("unknown mood file format %q", format)
	}
}

func decodeKeyed(r io.Reader) (map[int64][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records := make(map[int64][]string)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read mood row: %w", err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
		if err != nil || id <= 0 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: invalid user id %q", line, row[0])
		}
		if _, dup := records[id]; dup {
			return nil, fmt.Errorf("duplicate row for user %d", id)
		}
		records[id] = labelsOf(row[1:])
	}
	return records, nil
}

// decodePositional scans line by line because csv.Reader skips blank lines,
// and a blank line is a user with no moods.
func decodePositional(r io.Reader) (map[int64][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	records := make(map[int64][]string)
	var id int64
	for scanner.Scan() {
		id++
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			records[id] = []string{}
			continue
		}
		cr := csv.NewReader(bytes.NewReader(line))
		cr.FieldsPerRecord = -1
		// older files are a plain comma join, so a bare quote is literal text
		cr.LazyQuotes = true
		row, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", id, err)
		}
		records[id] = labelsOf(row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan mood file: %w", err)
	}
	return records, nil
}

func labelsOf(fields []string) []string {
	labels := make([]string, 0, len(fields))
	for _, field := range fields {
		if field == "" {
			continue
		}
		labels = append(labels, field)
	}
	return labels
}
