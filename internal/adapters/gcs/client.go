package gcs

import (
	"context"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type ClientOptions struct {
	// EmulatorHost points the client at a fake-gcs-server style emulator and disables auth.
	EmulatorHost    string
	CredentialsFile string
}

func NewClient(ctx context.Context, opts ClientOptions) (*storage.Client, error) {
	if host := strings.TrimRight(strings.TrimSpace(opts.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	clientOpts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	return storage.NewClient(ctx, clientOpts...)
}
