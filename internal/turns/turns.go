// Package turns parses a structured agent transcript (line-delimited
// JSON records) into an ordered sequence of user/assistant turns, per
// spec §4.2.
package turns

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/memorybank/membank/internal/errs"
)

// Role is a turn's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one extracted user/assistant message.
type Turn struct {
	Role      Role
	Text      string
	Timestamp int64
}

// record mirrors the subset of a transcript line this extractor cares
// about; unrecognized fields are ignored.
type record struct {
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Timestamp *int64          `json:"timestamp"`
	Sidechain bool            `json:"isSidechain"`
	Meta      bool            `json:"isMeta"`
	Message   json.RawMessage `json:"message"`
	Content   json.RawMessage `json:"content"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var discardedTypes = map[string]bool{
	"tool_use":    true,
	"tool_result": true,
	"thinking":    true,
}

// ExtractFile parses a transcript file at path. allowZeroTimestamp
// should be true only for import-sourced transcripts (§4.2).
func ExtractFile(path string, allowZeroTimestamp bool) ([]Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTranscriptMalformed, "open transcript", err)
	}
	defer f.Close()
	return Extract(f, allowZeroTimestamp)
}

type byteReader interface {
	Read(p []byte) (int, error)
}

// Extract parses line-delimited JSON records from r.
func Extract(r byteReader, allowZeroTimestamp bool) ([]Turn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var turns []Turn
	var lastTimestamp int64
	sawAny := false

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		sawAny = true

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // malformed line, skip per-record
		}

		if discardedTypes[rec.Type] || rec.Sidechain || rec.Meta {
			continue
		}

		role, text, ok := extractRoleText(rec)
		if !ok || text == "" {
			continue
		}

		ts := lastTimestamp
		if rec.Timestamp != nil {
			ts = *rec.Timestamp
			lastTimestamp = ts
		} else if lastTimestamp == 0 && !allowZeroTimestamp {
			// No timestamp ever seen and zero isn't permitted; keep ts
			// at 0 anyway, caller decides whether to reject the file.
		}

		turns = append(turns, Turn{Role: role, Text: text, Timestamp: ts})
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrTranscriptMalformed, "scan transcript", err)
	}

	if len(turns) < 1 {
		if sawAny {
			return nil, errs.Wrap(errs.ErrTranscriptMalformed, "no well-formed text records found", nil)
		}
		return nil, errs.Wrap(errs.ErrTranscriptMalformed, "empty transcript", nil)
	}

	return turns, nil
}

func extractRoleText(rec record) (Role, string, bool) {
	role := rec.Role
	content := rec.Content

	if rec.Message != nil {
		var m message
		if err := json.Unmarshal(rec.Message, &m); err == nil {
			if m.Role != "" {
				role = m.Role
			}
			if m.Content != nil {
				content = m.Content
			}
		}
	}

	var r Role
	switch role {
	case "user":
		r = RoleUser
	case "assistant":
		r = RoleAssistant
	default:
		return "", "", false
	}

	text := contentText(content)
	return r, text, true
}

// contentText concatenates only the text parts of a possibly-mixed
// content field, preserving order, separated by "\n\n" (§4.2).
func contentText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}

	var parts []contentPart
	if err := json.Unmarshal(content, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				if p.Text != "" {
					texts = append(texts, p.Text)
				}
			}
		}
		out := ""
		for i, t := range texts {
			if i > 0 {
				out += "\n\n"
			}
			out += t
		}
		return out
	}

	return ""
}
