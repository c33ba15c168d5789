package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
)

// Azure implements Provider on top of an Azure Blob Storage container.
// Keys map to blob names under an optional prefix ("annotations/a.json").
type Azure struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzure connects with a storage account connection string and creates the
// container when it does not exist yet.
func NewAzure(ctx context.Context, connString, containerName, prefix string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: azure client: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if _, err := client.CreateContainer(ctx, containerName, nil); err != nil &&
		!bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("storage: create container %s: %w", containerName, mapAzureError(err))
	}
	return &Azure{client: client, container: containerName, prefix: normalizePrefix(prefix)}, nil
}

// List pages through the container. Blob names below nested "folders" of the
// prefix are skipped.
func (a *Azure) List(ctx context.Context, suffix string) ([]models.DocumentInfo, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if a.prefix != "" {
		opts.Prefix = &a.prefix
	}
	pager := a.client.NewListBlobsFlatPager(a.container, opts)

	var out []models.DocumentInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list: %w", mapAzureError(err))
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			key := strings.TrimPrefix(*item.Name, a.prefix)
			if !hasSuffixFold(key, suffix) || ValidateKey(key) != nil {
				continue
			}
			out = append(out, blobInfo(key, item.Properties))
		}
	}
	return out, nil
}

// Read downloads the blob stored under key.
func (a *Azure) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	resp, err := a.client.DownloadStream(ctx, a.container, a.prefix+key, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, mapAzureError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w: %w", key, apperr.ErrStoreUnavailable, err)
	}
	return data, nil
}

// Write uploads data under key, overwriting any existing blob.
func (a *Azure) Write(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := a.client.UploadBuffer(ctx, a.container, a.prefix+key, data, nil); err != nil {
		return fmt.Errorf("storage: write %s: %w", key, mapAzureError(err))
	}
	return nil
}

func blobInfo(key string, p *container.BlobProperties) models.DocumentInfo {
	info := models.DocumentInfo{Key: key}
	if p == nil {
		return info
	}
	if p.ContentLength != nil {
		info.Size = *p.ContentLength
	}
	if p.ETag != nil {
		info.ETag = strings.Trim(string(*p.ETag), `"`)
	}
	if p.LastModified != nil {
		info.UpdatedAt = *p.LastModified
	}
	return info
}

// mapAzureError classifies SDK errors into the apperr taxonomy. Anything that
// is not a missing blob means the container could not serve the request.
func mapAzureError(err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 && respErr.ErrorCode != string(bloberror.ContainerNotFound) {
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
