package storage

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/starford/ecglabel/internal/apperr"
)

func TestMapAzureError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"blob missing", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: string(bloberror.BlobNotFound)}, apperr.ErrNotFound},
		{"container missing", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: string(bloberror.ContainerNotFound)}, apperr.ErrStoreUnavailable},
		{"auth", &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: string(bloberror.AuthenticationFailed)}, apperr.ErrStoreUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), apperr.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapAzureError(tc.err); !errors.Is(got, tc.want) {
				t.Errorf("mapAzureError = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	for in, want := range map[string]string{"": "", "/": "", "annotations": "annotations/", "/docs/": "docs/"} {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlobInfo(t *testing.T) {
	size := int64(42)
	etag := azcore.ETag(`"0x8D"`)
	mod := time.Date(2024, 3, 19, 10, 0, 0, 0, time.UTC)
	info := blobInfo("a.pdf", &container.BlobProperties{ContentLength: &size, ETag: &etag, LastModified: &mod})
	if info.Key != "a.pdf" || info.Size != 42 || info.ETag != "0x8D" || !info.UpdatedAt.Equal(mod) {
		t.Errorf("info = %+v", info)
	}
	if got := blobInfo("b.pdf", nil); got.Key != "b.pdf" {
		t.Errorf("nil properties: %+v", got)
	}
}
