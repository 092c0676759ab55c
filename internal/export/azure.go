package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/rs/zerolog"
)

// AzureConfig holds Azure Blob Storage settings. The first usable of
// connection string, SAS token, shared key and managed identity is used.
type AzureConfig struct {
	Container          string
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	Endpoint           string // custom endpoint for Azurite
}

// AzureSink uploads blobs to a container under a name prefix
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
	logger    zerolog.Logger
}

// NewAzureSink creates an Azure Blob Storage sink
func NewAzureSink(cfg *AzureConfig, prefix string, logger zerolog.Logger) (*AzureSink, error) {
	if cfg.Container == "" {
		return nil, fmt.Errorf("Azure container name is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountName != "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountName != "" && cfg.SASToken != "":
		client, err = azblob.NewClientWithNoCredential(endpoint+"?"+strings.TrimPrefix(cfg.SASToken, "?"), nil)
	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
	case cfg.UseManagedIdentity && cfg.AccountName != "":
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create managed identity credential: %w", credErr)
		}
		client, err = azblob.NewClient(endpoint, cred, nil)
	default:
		return nil, fmt.Errorf("no Azure authentication configured: set connection_string, account_name with account_key or sas_token, or use_managed_identity")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &AzureSink{
		client:    client,
		container: cfg.Container,
		prefix:    prefix,
		logger:    logger.With().Str("component", "azure-export").Logger(),
	}, nil
}

// Put uploads r as a block blob
func (s *AzureSink) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	start := time.Now()
	path := objectKey(s.prefix, name)
	ct := contentType(name)

	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlockBlobClient(path)
	_, err := blobClient.UploadStream(ctx, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("failed to upload az://%s/%s: %w", s.container, path, err)
	}
	s.logger.Debug().
		Str("path", path).
		Int64("size", size).
		Dur("duration", time.Since(start)).
		Msg("Uploaded export file")
	return nil
}

// Location implements Sink
func (s *AzureSink) Location(name string) string {
	return "az://" + s.container + "/" + objectKey(s.prefix, name)
}
