package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/studyforge/api/internal/model"
)

// ErrTranscriptNotFound is returned when a cache entry is missing or expired.
var ErrTranscriptNotFound = errors.New("transcript not found")

// DefaultTranscriptTTL bounds how long fetched transcripts stay cached.
const DefaultTranscriptTTL = time.Hour

// TranscriptCache is a write-once, time-bounded store of fetched transcript
// payloads. Entries expire via Redis TTL; nothing in the service deletes
// them explicitly.
type TranscriptCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewTranscriptCache(redisClient *redis.Client, ttl time.Duration) *TranscriptCache {
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	return &TranscriptCache{
		redis: redisClient,
		ttl:   ttl,
	}
}

func transcriptKey(id string) string {
	return fmt.Sprintf("transcript:%s", id)
}

// Put stores a fetched transcript under a freshly generated id and returns
// the completed entry. Existing entries are never overwritten.
func (c *TranscriptCache) Put(ctx context.Context, paragraphs []model.TranscriptParagraph) (*model.Transcript, error) {
	now := time.Now().UTC()

	charCount := 0
	for _, p := range paragraphs {
		charCount += len(p.Text)
	}

	entry := &model.Transcript{
		TranscriptID:   uuid.New().String(),
		Paragraphs:     paragraphs,
		CharacterCount: charCount,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}

	ok, err := c.redis.SetNX(ctx, transcriptKey(entry.TranscriptID), data, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to cache transcript: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("transcript id collision: %s", entry.TranscriptID)
	}

	return entry, nil
}

// Get returns a cached transcript or ErrTranscriptNotFound.
func (c *TranscriptCache) Get(ctx context.Context, transcriptID string) (*model.Transcript, error) {
	data, err := c.redis.Get(ctx, transcriptKey(transcriptID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTranscriptNotFound
		}
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var entry model.Transcript
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}

	return &entry, nil
}
