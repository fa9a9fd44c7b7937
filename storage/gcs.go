// Package storage publishes the result document.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ContentTypeJSON is declared on every uploaded document.
const ContentTypeJSON = "application/json"

// ClientFactory creates GCS clients. Creation is deferred to the first
// upload so credential failures surface inside the run.
type ClientFactory interface {
	NewClient(ctx context.Context) (*storage.Client, error)
}

// DefaultClientFactory authenticates with Application Default Credentials.
type DefaultClientFactory struct {
	Options []option.ClientOption
}

// NewClient creates a storage client with the factory options.
func (f DefaultClientFactory) NewClient(ctx context.Context) (*storage.Client, error) {
	return storage.NewClient(ctx, f.Options...)
}

// GCSConfig captures the destination of the document.
type GCSConfig struct {
	Bucket string
	Object string
	// ChunkSize overrides the writer's upload buffer when positive.
	ChunkSize int
}

// GCSPublisher writes the document as one object in a GCS bucket.
type GCSPublisher struct {
	factory ClientFactory
	cfg     GCSConfig
	logger  *zap.Logger

	mu     sync.Mutex
	client *storage.Client
}

// NewGCSPublisher validates cfg and returns a publisher.
func NewGCSPublisher(factory ClientFactory, cfg GCSConfig, logger *zap.Logger) (*GCSPublisher, error) {
	if factory == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GCSPublisher{
		factory: factory,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Publish uploads document, replacing any object already at the path, and
// returns its gs:// URI.
func (p *GCSPublisher) Publish(ctx context.Context, document []byte) (string, error) {
	client, err := p.clientFor(ctx)
	if err != nil {
		return "", err
	}

	wc := client.Bucket(p.cfg.Bucket).Object(p.cfg.Object).NewWriter(ctx)
	wc.ContentType = ContentTypeJSON
	if p.cfg.ChunkSize > 0 {
		wc.ChunkSize = p.cfg.ChunkSize
	}

	if _, err := wc.Write(document); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			p.logger.Warn("failed to close GCS writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("failed to write data to GCS object %s: %w", p.cfg.Object, err)
	}
	// Close finalizes the upload.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for object %s: %w", p.cfg.Object, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", p.cfg.Bucket, p.cfg.Object)
	p.logger.Debug("document uploaded", zap.String("uri", uri), zap.Int("bytes", len(document)))
	return uri, nil
}

// Close releases the client if one was created.
func (p *GCSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *GCSPublisher) clientFor(ctx context.Context) (*storage.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := p.factory.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	p.client = client
	return client, nil
}
