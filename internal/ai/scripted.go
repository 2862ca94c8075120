package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"
	"unicode/utf8"
)

// Scripted replays a fixed response. It backs offline runs, recorded
// transcripts and tests.
type Scripted struct {
	ScriptName string
	Chunks     []string
	Err        error         // yielded after the chunks, if set
	Delay      time.Duration // pause before each chunk
}

// NewScripted replays chunks in order.
func NewScripted(chunks ...string) *Scripted {
	return &Scripted{ScriptName: "scripted", Chunks: chunks}
}

// FromText splits text into chunks of at most size runes.
func FromText(text string, size int) *Scripted {
	return NewScripted(SplitChunks(text, size)...)
}

func (s *Scripted) Name() string { return s.ScriptName }

func (s *Scripted) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, chunk := range s.Chunks {
			if s.Delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(s.Delay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if s.Err != nil {
			yield("", s.Err)
		}
	}
}

// SplitChunks cuts text into pieces of at most size runes.
func SplitChunks(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			n++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}

// Transcript JSONL format, one event per line:
//   {"type": "chunk", "content": "ISSUE: The actor is hidden.\n"}
//   {"type": "chunk", "content": "\"She was seen by him\"", "delay_ms": 40}
//   {"type": "error", "content": "upstream timeout"}

type transcriptEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	DelayMS int    `json:"delay_ms"`
}

// LoadTranscript reads a JSONL transcript file.
func LoadTranscript(path string) (*Scripted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	s, err := ParseTranscript(f)
	if err != nil {
		return nil, err
	}
	s.ScriptName = "transcript:" + path
	return s, nil
}

// ParseTranscript parses JSONL transcript events. Malformed lines and
// unknown event types are skipped.
func ParseTranscript(r io.Reader) (*Scripted, error) {
	s := NewScripted()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry transcriptEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}

		switch entry.Type {
		case "chunk":
			s.Chunks = append(s.Chunks, entry.Content)
			if d := time.Duration(entry.DelayMS) * time.Millisecond; d > s.Delay {
				s.Delay = d
			}
		case "error":
			s.Err = errors.New(entry.Content)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning transcript: %w", err)
	}
	return s, nil
}
