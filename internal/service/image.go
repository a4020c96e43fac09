package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
	"github.com/utafrali/catalog/pkg/logger"
)

// MaxImageSize is the largest accepted image upload.
const MaxImageSize = 5 << 20

// AllowedImageTypes lists the accepted image MIME types.
var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// AttachImage stores an image for a live product and points image_url at it.
// The content type is sniffed from the bytes; the client's claim is ignored.
func (s *ProductService) AttachImage(ctx context.Context, actor domain.Actor, id int64, upload Upload) (*domain.Product, error) {
	mime, err := checkImage(upload)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id, false)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	path := fmt.Sprintf("products/%d/%s%s", id, uuid.NewString(), mime.Extension())
	url, err := s.images.Store(ctx, upload.Data, path, mime.String())
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	product, err := s.Update(ctx, actor, id, domain.ProductPatch{ImageURL: &url})
	if err != nil {
		if delErr := s.images.Delete(ctx, path); delErr != nil {
			s.dependencyFailed(ctx, "delete orphaned image", id, delErr)
		}
		return nil, err
	}

	if current.ImageURL != nil && *current.ImageURL != url {
		s.deleteImage(ctx, id, *current.ImageURL)
	}

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product image stored",
		slog.Int64("product_id", id),
		slog.String("path", path),
		slog.String("content_type", mime.String()),
		slog.Int("size", len(upload.Data)),
	)
	return product, nil
}

func checkImage(upload Upload) (*mimetype.MIME, error) {
	if len(upload.Data) == 0 {
		return nil, apperrors.Validation("the given data was invalid", map[string]string{
			"image": "is required",
		})
	}
	if len(upload.Data) > MaxImageSize {
		return nil, apperrors.Validation("the given data was invalid", map[string]string{
			"image": fmt.Sprintf("must not be larger than %d kilobytes", MaxImageSize>>10),
		})
	}

	mime := mimetype.Detect(upload.Data)
	if !slices.ContainsFunc(AllowedImageTypes, mime.Is) {
		return nil, apperrors.Validation("the given data was invalid", map[string]string{
			"image": "must be a file of type: jpeg, png, gif, webp",
		})
	}
	return mime, nil
}

// deleteImage removes a previously stored image. Failures only leave an
// orphaned file behind, so they are logged and ignored.
func (s *ProductService) deleteImage(ctx context.Context, id int64, url string) {
	path, ok := s.images.PathOf(url)
	if !ok {
		return
	}
	if err := s.images.Delete(ctx, path); err != nil {
		s.dependencyFailed(ctx, "delete previous image", id, err)
	}
}
