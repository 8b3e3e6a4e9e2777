package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"

	"go-palm-insight/pkg/models"
)

// BlobScheme marks an upload reference stored in Azure Blob Storage:
// azblob://<container>/<blob path>
const BlobScheme = "azblob"

type BlobStorage interface {
	Fetch(ctx context.Context, ref string) (*models.ImageData, error)
}

type azureStorage struct {
	client   *azblob.Client
	maxBytes int64
	log      logrus.FieldLogger
}

func NewAzureStorage(accountName, accountKey string, maxBytes int64, log logrus.FieldLogger) (BlobStorage, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return &azureStorage{
		client:   client,
		maxBytes: maxBytes,
		log:      log.WithField("component", "azure_storage"),
	}, nil
}

func (s *azureStorage) Fetch(ctx context.Context, ref string) (*models.ImageData, error) {
	containerName, blobName, err := parseBlobRef(ref)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.DownloadStream(ctx, containerName, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	contentType := ""
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	data, err := readLimited(body, s.maxBytes, contentType)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"container": containerName,
		"blob":      blobName,
		"size":      data.Size,
	}).Debug("Blob downloaded")
	return data, nil
}

// parseBlobRef splits azblob://container/path/to/blob
func parseBlobRef(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob reference: %w", err)
	}
	if u.Scheme != BlobScheme {
		return "", "", fmt.Errorf("blob reference must use the %s:// scheme", BlobScheme)
	}
	blobName := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || blobName == "" {
		return "", "", fmt.Errorf("blob reference %q needs a container and a blob name", ref)
	}
	return u.Host, blobName, nil
}
