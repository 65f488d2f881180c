package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIKey authorizes callers of the private endpoints. Keys are opaque random
// values looked up by indexed equality.
type APIKey struct {
	ID        uuid.UUID `gorm:"primary_key;type:uuid" json:"id"`
	Value     string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Label     string    `gorm:"size:255" json:"label"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (k *APIKey) Prepare() {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.Value == "" {
		k.Value = uuid.NewString() + uuid.NewString()
	}
	k.CreatedAt = time.Now()
}

func (k *APIKey) SaveAPIKey(db *gorm.DB) (*APIKey, error) {
	if err := db.Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

// FindAPIKeyByValue returns nil without error when the key is unknown.
func (k *APIKey) FindAPIKeyByValue(db *gorm.DB, value string) (*APIKey, error) {
	var key APIKey
	err := db.Where("value = ?", value).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &key, nil
}
