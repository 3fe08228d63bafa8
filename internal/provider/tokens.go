package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const fallbackEncoding = "cl100k_base"

func init() {
	// The default loader downloads BPE files on first use with no timeout.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// encodingResult is cached per model, failures included.
type encodingResult struct {
	enc *tiktoken.Tiktoken
	err error
}

var (
	encodings    sync.Map // model name -> encodingResult
	loadEncoding = defaultLoadEncoding
)

// estimateTokens counts text with the model's tokenizer, or with cl100k_base
// for models tiktoken does not know. Local models rarely match either
// exactly, so the result is an estimate.
func estimateTokens(model, text string) (int, bool) {
	enc, err := encodingFor(model)
	if err != nil {
		return 0, false
	}
	return len(enc.Encode(text, nil, nil)), true
}

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	if cached, ok := encodings.Load(model); ok {
		result := cached.(encodingResult)
		return result.enc, result.err
	}
	enc, err := loadEncoding(model)
	actual, _ := encodings.LoadOrStore(model, encodingResult{enc: enc, err: err})
	result := actual.(encodingResult)
	return result.enc, result.err
}

func defaultLoadEncoding(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding(fallbackEncoding)
}
