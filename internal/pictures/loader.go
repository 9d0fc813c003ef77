package pictures

import (
	"context"
	"fmt"
)

// Loader builds request-scoped histories from persisted metadata.
type Loader struct {
	store    MetaStore
	resolver Resolver
	settings Settings
}

func NewLoader(store MetaStore, resolver Resolver, settings Settings) *Loader {
	return &Loader{
		store:    store,
		resolver: resolver,
		settings: settings,
	}
}

// UserHistory loads the full history of userID. A user without persisted
// pictures gets an empty history; invalid ids are skipped. Stored pictures
// are kept even when they exceed the current capacity. A failure reading the
// store is the only error it returns.
func (l *Loader) UserHistory(ctx context.Context, userID int64) (*History, error) {
	max := DefaultMaxProfilePictures
	if l.settings != nil {
		max = l.settings.MaxProfilePictures(ctx)
	}

	history := NewHistory(userID, max, l.store)

	ids, err := l.store.Load(ctx, userID, HistoryMetaKey)
	if err != nil {
		return nil, fmt.Errorf("load history for user %d: %w", userID, err)
	}

	for _, id := range ids {
		history.Add(NewPicture(id, l.resolver), false)
	}

	return history, nil
}

// NewPicture builds a picture bound to the loader's resolver.
func (l *Loader) NewPicture(id int64) *Picture {
	return NewPicture(id, l.resolver)
}
