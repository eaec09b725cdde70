// Package feed reads scraper output: one raw extraction per JSONL line.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cognicore/breachwatch/pkg/breachwatch/record"
)

const maxLine = 4 << 20

// LoadFromJSONL loads extractions from a JSONL file. Lines without a source_id
// get sourceID.
func LoadFromJSONL(path string, sourceID int, logger *slog.Logger) ([]record.RawExtraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	defer f.Close()

	items, err := Read(f, sourceID, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Read decodes extractions from r. Malformed lines are logged and skipped; an
// input without a single valid line is an error.
func Read(r io.Reader, sourceID int, logger *slog.Logger) ([]record.RawExtraction, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var items []record.RawExtraction
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var item record.RawExtraction
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			logger.Warn("skipping malformed JSON line", "line", line, "error", err)
			continue
		}
		if item.SourceID == 0 {
			item.SourceID = sourceID
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan line %d: %w", line+1, err)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no valid items found")
	}
	return items, nil
}
