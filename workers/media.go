package workers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"feedsync/config"
	"feedsync/identity"
	"feedsync/models"
	"feedsync/storage"
)

const (
	maxImageBytes   = 50 * 1024 * 1024
	deleteTimeout   = 2 * time.Minute
	defaultQuality  = 82
	defaultBatchLen = 5
)

// ImagePipeline downloads listing photos, re-encodes them and uploads the
// result to object storage. Photos are handled in small concurrent batches
// with a throttle between batches; one bad photo never fails the others.
type ImagePipeline struct {
	httpClient *http.Client
	storage    storage.ObjectStorage
	cfg        config.ImageConfig
	keyPrefix  string
	limiter    *rate.Limiter
	logger     *slog.Logger
	pending    sync.WaitGroup
}

func NewImagePipeline(client *http.Client, store storage.ObjectStorage, cfg config.ImageConfig, keyPrefix string, logger *slog.Logger) *ImagePipeline {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchLen
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = defaultQuality
	}
	if keyPrefix == "" {
		keyPrefix = "properties"
	}

	limit := rate.Inf
	if cfg.BatchDelay > 0 {
		limit = rate.Every(cfg.BatchDelay)
	}

	return &ImagePipeline{
		httpClient: client,
		storage:    store,
		cfg:        cfg,
		keyPrefix:  keyPrefix,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.With("component", "images"),
	}
}

// ImageResult holds the uploaded images in feed order, numbered from 0,
// plus the photos that could not be stored.
type ImageResult struct {
	Images []models.PropertyImage
	Failed int
	Errors []string
}

// Process uploads every photo of a property. The returned images are not
// persisted; Order is assigned over successful photos only.
func (p *ImagePipeline) Process(ctx context.Context, propertyID uuid.UUID, photoURLs []string) ImageResult {
	var result ImageResult
	if len(photoURLs) == 0 {
		return result
	}

	images := make([]*models.PropertyImage, len(photoURLs))
	errs := make([]error, len(photoURLs))

	for start := 0; start < len(photoURLs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(photoURLs))

		if err := p.limiter.Wait(ctx); err != nil {
			for i := start; i < len(photoURLs); i++ {
				errs[i] = err
			}
			break
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				images[i], errs[i] = p.processOne(ctx, propertyID, photoURLs[i])
				return nil
			})
		}
		g.Wait()
	}

	order := 0
	for i, img := range images {
		if errs[i] != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", photoURLs[i], errs[i]))
			p.logger.Warn("image failed", "property_id", propertyID, "url", photoURLs[i], "error", errs[i])
			continue
		}
		img.Order = order
		order++
		result.Images = append(result.Images, *img)
	}

	return result
}

func (p *ImagePipeline) processOne(ctx context.Context, propertyID uuid.UUID, sourceURL string) (*models.PropertyImage, error) {
	data, err := p.download(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	encoded, err := p.reencode(data)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s/%s.jpg", p.keyPrefix, propertyID, identity.ContentHash(encoded))
	url, err := p.storage.Upload(ctx, key, encoded, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	return &models.PropertyImage{
		PropertyID: propertyID,
		URL:        url,
		StorageKey: key,
		SourceURL:  sourceURL,
	}, nil
}

func (p *ImagePipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// reencode decodes any supported format, flattens it onto white, caps the
// width and writes a JPEG.
func (p *ImagePipeline) reencode(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if p.cfg.MaxWidth > 0 && w > p.cfg.MaxWidth {
		h = max(1, h*p.cfg.MaxWidth/w)
		w = p.cfg.MaxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == b.Dx() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DeleteObjects removes the stored files of replaced or deleted images in
// the background. Failures are logged.
func (p *ImagePipeline) DeleteObjects(ctx context.Context, images []models.PropertyImage) {
	var keys []string
	for _, img := range images {
		if img.StorageKey != "" {
			keys = append(keys, img.StorageKey)
		}
	}
	if len(keys) == 0 {
		return
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
		defer cancel()

		for _, key := range keys {
			if err := p.storage.Delete(ctx, key); err != nil {
				p.logger.Warn("delete stored image failed", "key", key, "error", err)
			}
		}
	}()
}

// Wait blocks until background deletes have finished.
func (p *ImagePipeline) Wait() {
	p.pending.Wait()
}
