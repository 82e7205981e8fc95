// Package tokens estimates completion token counts with tiktoken encodings.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens in completion text. Counts are estimates for
// non-OpenAI models, which share no public tokenizer; the closest modern
// encoding is used instead.
type Estimator struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an estimator with an empty codec cache.
func NewEstimator() *Estimator {
	return &Estimator{codecs: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// Count returns the token count of text for the given native model name.
func (e *Estimator) Count(model, text string) (int, error) {
	codec, err := e.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (e *Estimator) codec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}

	encoding := encodingFor(model)

	e.mu.RLock()
	codec, ok := e.codecs[encoding]
	e.mu.RUnlock()
	if ok {
		return codec, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("get tokenizer encoding: %w", err)
	}

	e.mu.Lock()
	e.codecs[encoding] = codec
	e.mu.Unlock()

	return codec, nil
}

// encodingFor picks the fallback encoding by model family. Modern models
// overwhelmingly use o200k_base; cl100k_base covers the gpt-4/3.5 era.
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-4o"),
		strings.HasPrefix(model, "gpt-5"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	}
	return tokenizer.O200kBase
}
