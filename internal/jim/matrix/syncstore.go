package matrix

// syncstore.go implements mautrix.SyncStore on top of the config key/value
// store. Persisting the next_batch token across restarts keeps the bot from
// replaying old room history and answering messages it already answered.

import (
	"context"
	"errors"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Jim/internal/jim/config"
)

var _ mautrix.SyncStore = (*SyncStore)(nil)

// SyncStore keeps the Matrix filter id and sync token under
// "matrix.sync.<user id>.<key>" config keys.
type SyncStore struct {
	store config.Store
}

// NewSyncStore returns a SyncStore writing to store.
func NewSyncStore(store config.Store) *SyncStore {
	return &SyncStore{store: store}
}

func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.store.Set(ctx, syncKey(userID, "filter_id"), filterID)
}

// LoadFilterID returns ("", nil) when no filter has been saved yet.
func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, syncKey(userID, "filter_id"))
}

func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.store.Set(ctx, syncKey(userID, "next_batch"), nextBatchToken)
}

// LoadNextBatch returns ("", nil) on first run.
func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, syncKey(userID, "next_batch"))
}

func (s *SyncStore) load(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if errors.Is(err, config.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func syncKey(userID id.UserID, key string) string {
	return "matrix.sync." + userID.String() + "." + key
}
