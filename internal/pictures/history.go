package pictures

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// HistoryMetaKey is the per-user metadata key holding the ordered picture ids.
const HistoryMetaKey = "picture_history"

// DefaultMaxProfilePictures is the capacity used when none is configured.
const DefaultMaxProfilePictures = 10

// MetaStore persists per-user metadata as ordered id lists.
type MetaStore interface {
	Load(ctx context.Context, userID int64, key string) ([]int64, error)
	Store(ctx context.Context, userID int64, key string, ids []int64) error
}

// Settings provides the admin-configured history capacity.
type Settings interface {
	MaxProfilePictures(ctx context.Context) int
}

// ParseMaxProfilePictures returns raw as a capacity when it is a positive
// integer and fallback otherwise. A non-positive fallback becomes
// DefaultMaxProfilePictures.
func ParseMaxProfilePictures(raw string, fallback int) int {
	if fallback <= 0 {
		fallback = DefaultMaxProfilePictures
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// History is one user's ordered picture sequence. The last element is the
// current picture. Mutations stay in memory until Save.
type History struct {
	userID   int64
	max      int
	pictures []*Picture
	store    MetaStore
}

type UserSummary struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

type HistoryData struct {
	Count    int           `json:"count"`
	User     UserSummary   `json:"user"`
	Pictures []PictureData `json:"pictures"`
}

// NewHistory returns an empty history. A non-positive max uses the default.
func NewHistory(userID int64, max int, store MetaStore) *History {
	if max <= 0 {
		max = DefaultMaxProfilePictures
	}
	return &History{
		userID:   userID,
		max:      max,
		pictures: []*Picture{},
		store:    store,
	}
}

func (h *History) UserID() int64 {
	return h.userID
}

func (h *History) Max() int {
	return h.max
}

// Add appends p when it is valid and, if enforce is set, the history is not
// full. Anything else is silently dropped.
func (h *History) Add(p *Picture, enforce bool) {
	if p == nil || !p.IsValid() {
		return
	}
	if enforce && h.IsFull() {
		return
	}
	h.pictures = append(h.pictures, p)
}

// Current returns the newest picture or a fresh invalid sentinel.
func (h *History) Current() *Picture {
	if h.IsEmpty() {
		return &Picture{}
	}
	return h.pictures[len(h.pictures)-1]
}

func (h *History) OlderPictures() []*Picture {
	if !h.HasOlderPictures() {
		return []*Picture{}
	}
	older := make([]*Picture, len(h.pictures)-1)
	copy(older, h.pictures[:len(h.pictures)-1])
	return older
}

func (h *History) All() []*Picture {
	all := make([]*Picture, len(h.pictures))
	copy(all, h.pictures)
	return all
}

func (h *History) IDs() []int64 {
	ids := make([]int64, 0, len(h.pictures))
	for _, p := range h.pictures {
		ids = append(ids, p.ID())
	}
	return ids
}

func (h *History) Len() int {
	return len(h.pictures)
}

func (h *History) IsEmpty() bool {
	return len(h.pictures) == 0
}

func (h *History) HasProfilePicture() bool {
	return !h.IsEmpty()
}

func (h *History) HasOlderPictures() bool {
	return len(h.pictures) > 1
}

func (h *History) IsFull() bool {
	return len(h.pictures) >= h.max
}

// Contains reports whether id is somewhere in the history.
func (h *History) Contains(id int64) bool {
	return h.indexOf(id) >= 0
}

// Remove drops the first picture with the given id. Missing ids are ignored.
func (h *History) Remove(id int64) {
	idx := h.indexOf(id)
	if idx < 0 {
		return
	}
	h.pictures = append(h.pictures[:idx], h.pictures[idx+1:]...)
}

// Restore moves the picture with the given id to the end, making it current.
// The capacity check is bypassed; the length does not change.
func (h *History) Restore(id int64) {
	idx := h.indexOf(id)
	if idx < 0 {
		return
	}
	p := h.pictures[idx]
	h.Remove(id)
	h.Add(p, false)
}

// Save overwrites the persisted id list with the in-memory sequence.
func (h *History) Save(ctx context.Context) error {
	if h.store == nil {
		return fmt.Errorf("history for user %d has no store", h.userID)
	}
	if err := h.store.Store(ctx, h.userID, HistoryMetaKey, h.IDs()); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (h *History) Data(ctx context.Context, owner UserSummary) HistoryData {
	items := make([]PictureData, 0, len(h.pictures))
	for _, p := range h.pictures {
		items = append(items, p.Data(ctx))
	}
	return HistoryData{
		Count:    len(h.pictures),
		User:     owner,
		Pictures: items,
	}
}

func (h *History) indexOf(id int64) int {
	for i, p := range h.pictures {
		if p.ID() == id {
			return i
		}
	}
	return -1
}
