// Package archive implements an Integration that scans locally stored
// chat-export JSON files (one file per channel/chunk). Matches are
// scored by the number of distinct query keywords found in a message's
// content (logical OR across keywords), sorted by score descending.
// Corrupt files are logged and skipped — they must never fail the run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/logging"
)

const ID = "local-archive"

type chatMessage struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}

type chatChunk struct {
	Messages []chatMessage `json:"messages"`
}

// Integration scans a directory of chat-export JSON files.
type Integration struct {
	root   string
	logger logging.Logger
}

// New builds the archive integration. root is the directory containing
// per-channel/chunk JSON files.
func New(root string, logger logging.Logger) (*Integration, error) {
	if root == "" {
		return nil, fmt.Errorf("archive: root directory required")
	}
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Integration{root: root, logger: logger}, nil
}

func (i *Integration) ID() string { return ID }

func (i *Integration) Describe() string {
	return "Locally archived chat exports, matched by keyword and scored by match count."
}

func (i *Integration) QuerySchema() integration.QuerySchema {
	return integration.QuerySchema{
		"type":     "object",
		"required": []interface{}{"keywords"},
		"properties": map[string]interface{}{
			"keywords": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	}
}

// Execute walks the root directory, scoring each message by how many of
// the query's keywords appear in its content (case-insensitive, OR
// across keywords), and returns matches sorted by score descending.
func (i *Integration) Execute(ctx context.Context, params integration.QueryParams) (*integration.QueryResult, error) {
	keywords := keywordsFrom(params)
	if len(keywords) == 0 {
		return &integration.QueryResult{}, nil
	}

	limit := params.ResultLimit
	if limit <= 0 {
		limit = 25
	}

	type scored struct {
		item  integration.Item
		score int
	}
	var matches []scored

	err := filepath.WalkDir(i.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			i.logger.Warn("archive: failed to read chunk", map[string]interface{}{"path": path, "error": readErr.Error()})
			return nil
		}

		chunk, parseErr := decodeLenient(raw)
		if parseErr != nil {
			i.logger.Warn("archive: corrupt chunk, skipping", map[string]interface{}{"path": path, "error": parseErr.Error()})
			return nil
		}

		for _, msg := range chunk.Messages {
			score := matchScore(msg.Content, keywords)
			if score == 0 {
				continue
			}
			matches = append(matches, scored{
				item: integration.Item{
					ID:      msg.ID,
					Title:   fmt.Sprintf("#%s — %s", msg.Channel, msg.Author),
					Snippet: msg.Content,
					URL:     msg.URL,
					Source:  ID,
				},
				score: score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: walking %s: %w", i.root, err)
	}

	sort.SliceStable(matches, func(a, b int) bool { return matches[a].score > matches[b].score })

	items := make([]integration.Item, 0, len(matches))
	for idx, m := range matches {
		if idx >= limit {
			break
		}
		items = append(items, m.item)
	}

	return &integration.QueryResult{
		Items:         items,
		TotalUpstream: len(matches),
		Truncated:     len(matches) > len(items),
	}, nil
}

func keywordsFrom(params integration.QueryParams) []string {
	if kw, ok := params.Structured["keywords"].([]string); ok {
		return kw
	}
	if raw, ok := params.Structured["keywords"].([]interface{}); ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if params.FreeText != "" {
		return strings.Fields(params.FreeText)
	}
	return nil
}

func matchScore(content string, keywords []string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

// decodeLenient tolerates trailing commas and stray control characters,
// the two malformations spec.md names as common in these exports.
func decodeLenient(raw []byte) (*chatChunk, error) {
	cleaned := stripTrailingCommas(stripControlChars(raw))
	var chunk chatChunk
	if err := json.Unmarshal(cleaned, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func stripControlChars(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b < 0x20 && b != '\n' && b != '\t' && b != '\r' {
			continue
		}
		out = append(out, b)
	}
	return out
}

func stripTrailingCommas(raw []byte) []byte {
	var out bytes.Buffer
	for idx := 0; idx < len(raw); idx++ {
		b := raw[idx]
		if b == ',' {
			j := idx + 1
			for j < len(raw) && (raw[j] == ' ' || raw[j] == '\n' || raw[j] == '\t' || raw[j] == '\r') {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}
