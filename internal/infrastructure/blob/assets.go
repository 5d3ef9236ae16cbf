package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

// AudioRoute is the HTTP prefix serving stored audio assets.
const AudioRoute = "/api/audio/"

// AssetStore keeps audio in the relational store when no bucket is configured.
type AssetStore struct {
	repo ports.AudioAssetRepository
}

var _ ports.BlobStore = (*AssetStore)(nil)

// NewAssetStore wraps an audio asset repository.
func NewAssetStore(repo ports.AudioAssetRepository) *AssetStore {
	return &AssetStore{repo: repo}
}

// Put saves the object under a flattened key and returns the route serving it.
func (s *AssetStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	audioKey := AssetKey(key)
	asset := domain.AudioAsset{
		AudioKey:        audioKey,
		LanguageCode:    languageFromKey(key),
		MimeType:        contentType,
		Data:            data,
		ByteSize:        len(data),
		DurationSeconds: domain.WAVDurationSeconds(data),
	}
	if err := s.repo.SaveAsset(ctx, asset); err != nil {
		return "", fmt.Errorf("save audio asset: %w", err)
	}
	return AudioRoute + audioKey, nil
}

// AssetKey turns an object path into a single URL segment.
func AssetKey(key string) string {
	return strings.ReplaceAll(strings.Trim(key, "/"), "/", "_")
}

// languageFromKey reads "<lang>" out of ".../<reviewID>-<xx>-<REGION>-<suffix>.wav".
func languageFromKey(key string) string {
	parts := strings.Split(path.Base(key), "-")
	if len(parts) < 3 {
		return ""
	}
	return parts[1] + "-" + parts[2]
}
