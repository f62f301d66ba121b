package podcast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/marketcast/internal/interfaces"
	"github.com/ternarybob/marketcast/internal/services/chunker"
)

// ErrNothingToNarrate is returned when the report has no speakable text
var ErrNothingToNarrate = errors.New("report has no narratable text")

// BuildResult describes a written episode
type BuildResult struct {
	Path       string
	Chunks     int
	Oversized  int
	AudioBytes int
}

// Builder narrates a markdown report into a single audio file
type Builder struct {
	synth     interfaces.Synthesizer
	byteLimit int
	logger    arbor.ILogger
}

// NewBuilder creates a builder that keeps each request under byteLimit
func NewBuilder(synth interfaces.Synthesizer, byteLimit int, logger arbor.ILogger) *Builder {
	return &Builder{
		synth:     synth,
		byteLimit: byteLimit,
		logger:    logger,
	}
}

// Build strips markdown, chunks the text, synthesizes every chunk in order
// and writes the concatenated audio to path. Any synthesis error aborts the
// build and nothing is written.
func (b *Builder) Build(ctx context.Context, markdown, path string) (*BuildResult, error) {
	chunks := chunker.Chunk(PlainText(markdown), b.byteLimit)
	if len(chunks) == 0 {
		return nil, ErrNothingToNarrate
	}

	result := &BuildResult{Path: path, Chunks: len(chunks)}
	b.logger.Info().Int("chunks", len(chunks)).Int("byte_limit", b.byteLimit).Msg("Synthesizing narration")

	var audio []byte
	for _, chunk := range chunks {
		if chunk.Oversized {
			result.Oversized++
			b.logger.Warn().
				Int("chunk", chunk.Index).
				Int("bytes", chunk.Bytes).
				Int("byte_limit", b.byteLimit).
				Msg("Sentence exceeds byte limit, sending whole")
		}

		segment, err := b.synth.Synthesize(ctx, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("synthesize chunk %d/%d: %w", chunk.Index+1, len(chunks), err)
		}
		audio = append(audio, segment...)
		b.logger.Debug().Int("chunk", chunk.Index+1).Int("of", len(chunks)).Msg("Chunk synthesized")
	}

	if err := writeFileAtomic(path, audio); err != nil {
		return nil, err
	}
	result.AudioBytes = len(audio)
	return result, nil
}

// writeFileAtomic writes through a temp file in the same directory
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close audio file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move audio into place: %w", err)
	}
	return nil
}
