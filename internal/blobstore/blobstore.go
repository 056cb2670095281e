// Package blobstore wraps the Azure Blob Storage operations the pipeline
// consumes: paged listing, blob read/write, and time-limited signed read URLs.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/Azure-Samples/tayra/internal/types"
)

// Pager yields one listing page at a time, forward-only.
type Pager interface {
	More() bool
	Next(ctx context.Context) ([]types.AudioObject, error)
}

// Store is the blob-service surface consumed by the pipeline.
type Store interface {
	List(container, prefix string, pageSize int32) Pager
	Download(ctx context.Context, container, key string) ([]byte, error)
	Upload(ctx context.Context, container, key string, data []byte) error
	SignedURL(container, key string, expiry time.Duration) (string, error)
}

// AzureStore implements Store on top of the azblob SDK client.
type AzureStore struct {
	client *azblob.Client
}

// NewAzureStore builds a store from a storage account connection string. SAS
// generation requires the shared-key form of the connection string.
func NewAzureStore(connectionString string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureStore{client: client}, nil
}

func (s *AzureStore) List(container, prefix string, pageSize int32) Pager {
	opts := &azblob.ListBlobsFlatOptions{MaxResults: &pageSize}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	return &azurePager{pager: s.client.NewListBlobsFlatPager(container, opts)}
}

func (s *AzureStore) Download(ctx context.Context, container, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", container, key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", container, key, err)
	}
	return data, nil
}

func (s *AzureStore) Upload(ctx context.Context, container, key string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, container, key, data, nil); err != nil {
		return fmt.Errorf("upload %s/%s: %w", container, key, err)
	}
	return nil
}

// SignedURL returns a read-only SAS URL for one blob, valid for the given
// duration from now.
func (s *AzureStore) SignedURL(container, key string, expiry time.Duration) (string, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(container).NewBlobClient(key)
	u, err := blobClient.GetSASURL(
		sas.BlobPermissions{Read: true},
		time.Now().UTC().Add(expiry),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", container, key, err)
	}
	return u, nil
}

type azurePager struct {
	pager *runtime.Pager[azblob.ListBlobsFlatResponse]
}

func (p *azurePager) More() bool {
	return p.pager.More()
}

func (p *azurePager) Next(ctx context.Context) ([]types.AudioObject, error) {
	page, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blobs page: %w", err)
	}
	objects := make([]types.AudioObject, 0, len(page.Segment.BlobItems))
	for _, item := range page.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		obj := types.AudioObject{Key: *item.Name}
		if item.Properties != nil {
			if item.Properties.ContentLength != nil {
				obj.Size = *item.Properties.ContentLength
			}
			if item.Properties.ContentType != nil {
				obj.ContentType = *item.Properties.ContentType
			}
		}
		objects = append(objects, obj)
	}
	return objects, nil
}
