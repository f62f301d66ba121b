package interfaces

import "context"

// Synthesizer converts one text chunk into encoded audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
