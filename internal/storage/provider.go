package storage

import "captionflow/internal/ports"

// Provider is the storage contract used by the asset host and health checks.
type Provider = ports.StorageProvider
