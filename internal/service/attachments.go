package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"bip-service/internal/models"
	"bip-service/internal/store"
	"bip-service/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Media kinds
const (
	MediaVideo = "video"
	MediaImage = "image"
)

// Upload limits per media kind
const (
	MaxVideoBytes = 100 << 20
	MaxImageBytes = 10 << 20
)

// sniffLen is how many leading bytes are inspected to detect content type.
const sniffLen = 3072

// MaxMediaBytes returns the upload limit of kind, or 0 for unknown kinds.
func MaxMediaBytes(kind string) int64 {
	switch kind {
	case MediaVideo:
		return MaxVideoBytes
	case MediaImage:
		return MaxImageBytes
	}
	return 0
}

func (s *BipService) mediaURL(bip *models.Bip, kind string) *string {
	if kind == MediaVideo {
		return bip.VideoURL
	}
	return bip.ImageURL
}

// AttachMedia streams r into object storage and sets it as the bip's video
// or image, replacing any previous object. size is the declared length, or
// -1 when unknown.
func (s *BipService) AttachMedia(ctx context.Context, bipID int64, kind string, r io.Reader, size int64) (*models.Bip, error) {
	ctx, span := util.StartSpan(ctx, "BipService.AttachMedia",
		attribute.Int64("bip.id", bipID),
		attribute.String("media.kind", kind))
	defer span.End()

	limit := MaxMediaBytes(kind)
	if limit == 0 {
		return nil, ErrUnsupportedMedia
	}
	if size > limit {
		return nil, ErrMediaTooLarge
	}
	if s.storage == nil {
		return nil, errors.New("object storage not configured")
	}

	bip, err := s.repo.GetBipByID(ctx, bipID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBipNotFound
	}
	if err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	if !strings.HasPrefix(mtype.String(), kind+"/") {
		return nil, ErrUnsupportedMedia
	}

	body := &limitedReader{r: io.MultiReader(bytes.NewReader(head), r), remaining: limit}
	key := fmt.Sprintf("bips/%d/%s/%s%s", bipID, kind, uuid.New().String(), mtype.Extension())

	url, err := s.storage.Upload(ctx, key, body, mtype.String())
	if err != nil {
		if errors.Is(err, ErrMediaTooLarge) {
			s.deleteObject(ctx, key)
			return nil, ErrMediaTooLarge
		}
		return nil, util.SpanError(span, fmt.Errorf("failed to upload %s: %w", kind, err))
	}

	previous := s.mediaURL(bip, kind)
	if err := s.repo.SetBipMedia(ctx, bipID, kind, &url); err != nil {
		s.deleteObject(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBipNotFound
		}
		return nil, util.SpanError(span, err)
	}
	if previous != nil {
		if oldKey := s.storage.KeyFromURL(*previous); oldKey != "" {
			s.deleteObject(ctx, oldKey)
		}
	}

	if kind == MediaVideo {
		bip.VideoURL = &url
	} else {
		bip.ImageURL = &url
	}

	util.AttachmentUploadsTotal.WithLabelValues(kind).Inc()
	util.LoggerFromContext(ctx).Info("Bip media attached",
		zap.Int64("bip_id", bipID),
		zap.String("kind", kind),
		zap.String("key", key))
	return bip, nil
}

// RemoveMedia clears the bip's video or image and deletes the stored object.
func (s *BipService) RemoveMedia(ctx context.Context, bipID int64, kind string) (*models.Bip, error) {
	if MaxMediaBytes(kind) == 0 {
		return nil, ErrUnsupportedMedia
	}

	bip, err := s.repo.GetBipByID(ctx, bipID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBipNotFound
	}
	if err != nil {
		return nil, err
	}

	previous := s.mediaURL(bip, kind)
	if previous == nil {
		return bip, nil
	}

	if err := s.repo.SetBipMedia(ctx, bipID, kind, nil); err != nil {
		return nil, err
	}
	if s.storage != nil {
		if key := s.storage.KeyFromURL(*previous); key != "" {
			s.deleteObject(ctx, key)
		}
	}

	if kind == MediaVideo {
		bip.VideoURL = nil
	} else {
		bip.ImageURL = nil
	}
	return bip, nil
}

func (s *BipService) deleteObject(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Error("Failed to delete stored object", zap.String("key", key), zap.Error(err))
	}
}

// limitedReader fails with ErrMediaTooLarge once more than remaining bytes
// have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrMediaTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrMediaTooLarge
	}
	return n, err
}
