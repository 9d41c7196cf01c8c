package fetch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/studyforge/api/internal/model"
)

// TranscriptClient fetches the transcript of one audio source. The call is
// the unreliable external operation the retrier wraps.
type TranscriptClient interface {
	FetchTranscript(ctx context.Context, audioURL string, speechModel model.SpeechModel) ([]model.TranscriptParagraph, error)
}

// Cache is the write-once transcript store fetched results land in.
type Cache interface {
	Put(ctx context.Context, paragraphs []model.TranscriptParagraph) (*model.Transcript, error)
}

// Fetcher retrieves transcripts with retries and caches successful results.
type Fetcher struct {
	client  TranscriptClient
	cache   Cache
	retrier *Retrier[[]model.TranscriptParagraph]
}

func NewFetcher(client TranscriptClient, cache Cache, routes RouteProvider) *Fetcher {
	return &Fetcher{
		client:  client,
		cache:   cache,
		retrier: NewRetrier[[]model.TranscriptParagraph](routes),
	}
}

// Fetch retrieves the transcript for audioURL, retrying with backoff. A
// cache write failure is logged but does not fail the fetch; the uncached
// transcript is returned instead.
func (f *Fetcher) Fetch(ctx context.Context, audioURL string, speechModel model.SpeechModel) (*model.Transcript, error) {
	paragraphs, err := f.retrier.Do(ctx, func(ctx context.Context) ([]model.TranscriptParagraph, error) {
		return f.client.FetchTranscript(ctx, audioURL, speechModel)
	})
	if err != nil {
		return nil, fmt.Errorf("transcript fetch exhausted all attempts: %w", err)
	}

	if f.cache != nil {
		entry, cacheErr := f.cache.Put(ctx, paragraphs)
		if cacheErr == nil {
			return entry, nil
		}
		log.Printf("Failed to cache transcript: %v", cacheErr)
	}

	charCount := 0
	for _, p := range paragraphs {
		charCount += len(p.Text)
	}
	// Uncached entries carry no id and no expiry.
	return &model.Transcript{
		Paragraphs:     paragraphs,
		CharacterCount: charCount,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
