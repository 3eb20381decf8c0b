package main

import (
	"context"
	"net/http"

	"github.com/tonimelisma/drive2s3/internal/config"
	"github.com/tonimelisma/drive2s3/internal/gdrive"
	"github.com/tonimelisma/drive2s3/internal/objstore"
)

// newHTTPClient returns an HTTP client bounded by the network timeouts. It
// serves OAuth refreshes, Drive requests and the destination SDKs.
func newHTTPClient(cfg *config.Config) *http.Client {
	return gdrive.NewHTTPClient(cfg.Network.ConnectTimeoutDuration(), cfg.Network.DataTimeoutDuration())
}

// newDriveClient authenticates and returns a Drive client configured from
// cc.Cfg.
func newDriveClient(ctx context.Context, cc *CLIContext, interactive bool) (*gdrive.Client, error) {
	ts, err := driveTokenSource(ctx, cc, interactive)
	if err != nil {
		return nil, err
	}

	cfg := cc.Cfg

	return gdrive.NewClient(gdrive.DefaultBaseURL, newHTTPClient(cfg), ts, cc.Logger,
		gdrive.WithUserAgent(cfg.Network.UserAgent),
		gdrive.WithMaxRetries(cfg.Network.MaxRetries),
		gdrive.WithChunkSize(cfg.Transfers.ChunkSizeBytes()),
		gdrive.WithMaxFileSize(cfg.Transfers.MaxFileSizeBytes()),
		gdrive.WithTrashed(cfg.Source.IncludeTrashed),
	), nil
}

// newStore builds the destination store. Missing credentials surface here,
// before any file is touched.
func newStore(ctx context.Context, cc *CLIContext) (objstore.Store, error) {
	d := cc.Cfg.Destination

	return objstore.New(ctx, objstore.Config{
		Provider:     d.Provider,
		Region:       d.Region,
		Bucket:       d.Bucket,
		Endpoint:     d.Endpoint,
		AccessKey:    d.AccessKey,
		AccessSecret: d.AccessSecret,
		StorageClass: d.StorageClass,
		MaxRetries:   cc.Cfg.Network.MaxRetries,
		HTTPClient:   newHTTPClient(cc.Cfg),
	}, cc.Logger)
}
