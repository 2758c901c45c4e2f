package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// ProfileType declares how a profile value is stored and read back
type ProfileType string

const (
	ProfileTypeID  ProfileType = "id"
	ProfileTypeInt ProfileType = "int"
	ProfileTypeStr ProfileType = "str"
)

// ProfileEntry is one per-user preference value. Array values use one row
// per element, ordered by Idx.
type ProfileEntry struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Username  string      `gorm:"size:255;not null;uniqueIndex:idx_profile_user_key_idx" json:"username"`
	Key       string      `gorm:"column:idx_key;size:96;not null;uniqueIndex:idx_profile_user_key_idx" json:"key"`
	Idx       int         `gorm:"not null;default:0;uniqueIndex:idx_profile_user_key_idx" json:"idx"`
	Type      ProfileType `gorm:"size:8;not null" json:"type"`
	Value     string      `gorm:"type:text" json:"value"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (ProfileEntry) TableName() string {
	return "profiles"
}

// ProfileStore persists user preferences under namespaced keys
type ProfileStore struct {
	db *gorm.DB
}

// NewProfileStore creates a profile store on an open database
func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Transaction runs fn against a store bound to one database transaction.
// Writes made through tx are committed together or not at all.
func (s *ProfileStore) Transaction(ctx context.Context, fn func(tx *ProfileStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&ProfileStore{db: db})
	})
}

// Get returns a scalar value, or def when the key is absent
func (s *ProfileStore) Get(ctx context.Context, username, key, def string) (string, error) {
	var entry ProfileEntry
	err := s.db.WithContext(ctx).
		Where("username = ? AND idx_key = ? AND idx = 0", username, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read profile %s: %w", key, err)
	}
	return entry.Value, nil
}

// GetInt returns an integer value, or def when absent or not a number
func (s *ProfileStore) GetInt(ctx context.Context, username, key string, def int) (int, error) {
	raw, err := s.Get(ctx, username, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return def, nil
	}
	return n, nil
}

// GetArray returns all elements of an array value, or def when absent
func (s *ProfileStore) GetArray(ctx context.Context, username, key string, def []string) ([]string, error) {
	var entries []ProfileEntry
	err := s.db.WithContext(ctx).
		Where("username = ? AND idx_key = ?", username, key).
		Order("idx").
		Find(&entries).Error
	if err != nil {
		return def, fmt.Errorf("failed to read profile %s: %w", key, err)
	}
	if len(entries) == 0 {
		return def, nil
	}

	values := make([]string, 0, len(entries))
	for _, e := range entries {
		values = append(values, e.Value)
	}
	return values, nil
}

// Update stores a scalar value, replacing any previous value
func (s *ProfileStore) Update(ctx context.Context, username, key, value string, typ ProfileType) error {
	return s.UpdateArray(ctx, username, key, []string{value}, typ)
}

// UpdateArray replaces an array value. An empty slice deletes the key.
func (s *ProfileStore) UpdateArray(ctx context.Context, username, key string, values []string, typ ProfileType) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ? AND idx_key = ?", username, key).Delete(&ProfileEntry{}).Error; err != nil {
			return fmt.Errorf("failed to clear profile %s: %w", key, err)
		}
		if len(values) == 0 {
			return nil
		}

		entries := make([]ProfileEntry, 0, len(values))
		for i, v := range values {
			entries = append(entries, ProfileEntry{
				Username: username,
				Key:      key,
				Idx:      i,
				Type:     typ,
				Value:    v,
			})
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("failed to write profile %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes a key and all of its array elements
func (s *ProfileStore) Delete(ctx context.Context, username string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("username = ? AND idx_key IN ?", username, keys).
		Delete(&ProfileEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete profile keys: %w", err)
	}
	return nil
}

// DeleteIdx removes a single array element
func (s *ProfileStore) DeleteIdx(ctx context.Context, username, key string, idx int) error {
	err := s.db.WithContext(ctx).
		Where("username = ? AND idx_key = ? AND idx = ?", username, key, idx).
		Delete(&ProfileEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete profile %s[%d]: %w", key, idx, err)
	}
	return nil
}

// Keys lists the keys a user has stored
func (s *ProfileStore) Keys(ctx context.Context, username string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&ProfileEntry{}).
		Where("username = ?", username).
		Distinct("idx_key").
		Order("idx_key").
		Pluck("idx_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profile keys: %w", err)
	}
	return keys, nil
}
