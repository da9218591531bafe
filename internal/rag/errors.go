package rag

import (
	"errors"
	"fmt"
)

// Failure kinds shared by every stage of the pipeline. Errors are wrapped
// with context and classified with errors.Is.
var (
	// ErrIndexUnavailable means the vector index (or the embedding step that
	// feeds it) is unreachable, misconfigured, or timed out.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrGeneratorUnavailable means the LLM provider is missing credentials,
	// failed, or timed out.
	ErrGeneratorUnavailable = errors.New("generator unavailable")

	// ErrConfigurationInvalid means settings or call arguments are malformed.
	ErrConfigurationInvalid = errors.New("configuration invalid")

	// ErrRerankerUnavailable means the optional cross-encoder is not
	// configured or failed. The query engine falls back to index order.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrJudgeUnavailable means the groundedness self-check could not be
	// computed. The query engine reports groundedness as absent.
	ErrJudgeUnavailable = errors.New("groundedness judge unavailable")

	// ErrSchemaAmbiguous means an existing collection's vector layout could
	// not be classified. It is a kind of ErrIndexUnavailable.
	ErrSchemaAmbiguous = fmt.Errorf("%w: vector schema ambiguous", ErrIndexUnavailable)
)

// classify wraps err with kind unless it already carries one of the known
// failure kinds.
func classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrGeneratorUnavailable) ||
		errors.Is(err, ErrConfigurationInvalid) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// AsIndexFailure classifies err as ErrIndexUnavailable unless it already has a kind.
func AsIndexFailure(err error) error { return classify(ErrIndexUnavailable, err) }

// AsGeneratorFailure classifies err as ErrGeneratorUnavailable unless it already has a kind.
func AsGeneratorFailure(err error) error { return classify(ErrGeneratorUnavailable, err) }
