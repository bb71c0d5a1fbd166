// Package media turns uploaded profile photos into URLs that can be stored on a
// user document.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"golang.org/x/image/draw"
)

const (
	DefaultMaxDimension = 400
	DefaultJPEGQuality  = 50
	DefaultFolder       = "socialsync/avatars"
	MaxUploadBytes      = 10 << 20
)

// ErrInvalidImage is returned for uploads that are too large or not a
// decodable image.
var ErrInvalidImage = errors.New("media: invalid image")

// Processor stores a photo and returns the URL to reference it by.
type Processor interface {
	Process(ctx context.Context, userID string, r io.Reader) (string, error)
}

type Config struct {
	MaxDimension  int
	JPEGQuality   int
	CloudinaryURL string
	Folder        string
}

// NewProcessor uploads to Cloudinary when a URL is configured and otherwise
// inlines photos as JPEG data URLs.
func NewProcessor(cfg Config) (Processor, error) {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	if cfg.CloudinaryURL == "" {
		return &DataURLEncoder{MaxDimension: cfg.MaxDimension, Quality: cfg.JPEGQuality}, nil
	}
	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("media: cloudinary config: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: cfg.Folder, maxDimension: cfg.MaxDimension}, nil
}

// DataURLEncoder downscales a photo and returns it as data:image/jpeg;base64.
type DataURLEncoder struct {
	MaxDimension int
	Quality      int
}

func (e *DataURLEncoder) Process(_ context.Context, _ string, r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Fit(src, e.MaxDimension), &jpeg.Options{Quality: e.Quality}); err != nil {
		return "", fmt.Errorf("media: encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Fit scales src down so its longer side is at most limit, keeping the aspect
// ratio, onto a white background. Images already small enough keep their size.
func Fit(src image.Image, limit int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit > 0 && (w > limit || h > limit) {
		if w >= h {
			h = h * limit / w
			w = limit
		} else {
			w = w * limit / h
			h = limit
		}
	}
	w, h = max(w, 1), max(h, 1)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	return data, nil
}

// CloudinaryUploader stores photos in a Cloudinary folder, one public id per user.
type CloudinaryUploader struct {
	cld          *cloudinary.Cloudinary
	folder       string
	maxDimension int
}

func (u *CloudinaryUploader) Process(ctx context.Context, userID string, r io.Reader) (string, error) {
	data, err := readLimited(r)
	if err != nil {
		return "", err
	}
	params := uploader.UploadParams{
		Folder:         u.folder,
		PublicID:       userID,
		Transformation: fmt.Sprintf("c_limit,w_%d,h_%d,q_auto", u.maxDimension, u.maxDimension),
	}
	result, err := u.cld.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("media: cloudinary upload: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("media: cloudinary upload: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}
