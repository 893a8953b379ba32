package usecase

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/service/llm"
	"github.com/finseer-lab/mnemosyne/pkg/service/retrieval"
	"github.com/finseer-lab/mnemosyne/pkg/service/scoring"
)

type UseCases struct {
	evaluator *scoring.Evaluator
	amplifier *retrieval.Amplifier

	Memory *MemoryUseCase
}

type Option func(*UseCases)

// WithEvaluator replaces the default scoring evaluator
func WithEvaluator(evaluator *scoring.Evaluator) Option {
	return func(uc *UseCases) {
		uc.evaluator = evaluator
	}
}

// WithAmplifier replaces the default retrieval amplifier
func WithAmplifier(amplifier *retrieval.Amplifier) Option {
	return func(uc *UseCases) {
		uc.amplifier = amplifier
	}
}

func New(cache interfaces.SessionCache, store interfaces.VectorStore, llmSvc llm.Service, opts ...Option) (*UseCases, error) {
	if cache == nil {
		return nil, goerr.New("session cache is required")
	}
	if store == nil {
		return nil, goerr.New("vector store is required")
	}
	if llmSvc == nil {
		return nil, goerr.New("language service is required")
	}

	uc := &UseCases{}
	for _, opt := range opts {
		opt(uc)
	}

	if uc.evaluator == nil {
		uc.evaluator = scoring.New(nil)
	}
	if uc.amplifier == nil {
		amplifier, err := retrieval.New(llmSvc, store)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build retrieval amplifier")
		}
		uc.amplifier = amplifier
	}

	uc.Memory = NewMemoryUseCase(cache, store, llmSvc, uc.evaluator, uc.amplifier)

	return uc, nil
}
