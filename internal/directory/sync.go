package directory

import (
	"context"
	"time"

	"rfqdesk/internal/config"
	"rfqdesk/internal/storage"
)

type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg}
}

func (s *SyncService) Sync(ctx context.Context) (int, error) {
	brands, err := s.client.GetBrandsScrollAll(ctx)
	if err != nil {
		return 0, err
	}
	if len(brands) > 0 {
		if err := s.db.UpsertBrands(brands); err != nil {
			return 0, err
		}
	}
	_ = s.db.SetMetadata("directory.last_sync", time.Now().UTC().Format(time.RFC3339))
	return len(brands), nil
}

// LoadIndex builds the lookup index from whatever the local cache holds.
// An empty cache yields an index that detects nothing, which keeps the
// pipeline usable before the first sync.
func LoadIndex(db *storage.DB) (*Index, error) {
	brands, err := db.ListBrands()
	if err != nil {
		return nil, err
	}
	return BuildIndex(brands), nil
}
