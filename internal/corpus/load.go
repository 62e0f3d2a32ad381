package corpus

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names a corpus file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// textSeparator divides prompts in a text corpus.
const textSeparator = "---"

// DetectFormat infers the format from a file extension. Unknown extensions
// are read as text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// LoadFile reads messages from path. An empty format is detected from the
// extension.
func LoadFile(path string, format Format) ([]Message, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer file.Close()

	if format == "" {
		format = DetectFormat(path)
	}
	msgs, err := Decode(file, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}

// Decode reads messages in the given format.
func Decode(r io.Reader, format Format) ([]Message, error) {
	var (
		msgs []Message
		err  error
	)
	switch format {
	case FormatJSON:
		msgs, err = decodeJSON(r)
	case FormatCSV:
		msgs, err = decodeCSV(r)
	case FormatText, "":
		msgs, err = decodeText(r)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrEmpty
	}
	return msgs, nil
}

// decodeJSON accepts an array of {role, content} objects or an array of
// plain strings.
func decodeJSON(r io.Reader) ([]Message, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	msgs := make([]Message, 0, len(raw))
	for i, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			msgs = append(msgs, Message{Role: "user", Content: text})
			continue
		}
		var m Message
		if err := json.Unmarshal(item, &m); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("entry %d has empty content", i)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// decodeCSV reads rows with a header containing a content column and an
// optional role column.
func decodeCSV(r io.Reader) ([]Message, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have a header row and at least one data row")
	}

	roleCol, contentCol := -1, -1
	for i, name := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "role":
			roleCol = i
		case "content":
			contentCol = i
		}
	}
	if contentCol == -1 {
		return nil, fmt.Errorf("CSV header must contain a content column")
	}

	msgs := make([]Message, 0, len(rows)-1)
	for i, row := range rows[1:] {
		m := Message{Content: row[contentCol]}
		if roleCol != -1 {
			m.Role = row[roleCol]
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("row %d has empty content", i+2)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// decodeText splits the input on lines consisting only of "---". Each
// non-blank block becomes one user message.
func decodeText(r io.Reader) ([]Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		msgs  []Message
		block []string
	)
	flush := func() {
		content := strings.TrimSpace(strings.Join(block, "\n"))
		if content != "" {
			msgs = append(msgs, Message{Role: "user", Content: content})
		}
		block = block[:0]
	}
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == textSeparator {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	flush()
	return msgs, nil
}
