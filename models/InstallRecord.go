package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// InstallRecord is a device-heuristics snapshot written by the browser before
// the app is installed. It lives until a post-install search consumes it or
// the retention sweeper deletes it.
type InstallRecord struct {
	InstallID           string    `gorm:"primary_key;size:36" json:"install_id"`
	Language            string    `gorm:"size:35" json:"language"`
	Languages           []string  `gorm:"serializer:json" json:"languages"`
	Timezone            string    `gorm:"size:64" json:"timezone"`
	ScreenWidth         int       `gorm:"not null" json:"screen_width"`
	ScreenHeight        int       `gorm:"not null" json:"screen_height"`
	DevicePixelRatio    float64   `json:"device_pixel_ratio"`
	Platform            string    `gorm:"size:64" json:"platform"`
	UserAgent           string    `json:"user_agent"`
	ConnectionType      *string   `gorm:"size:32" json:"connection_type,omitempty"`
	HardwareConcurrency *int      `json:"hardware_concurrency,omitempty"`
	Memory              *float64  `json:"memory,omitempty"`
	ColorDepth          *int      `json:"color_depth,omitempty"`
	Clipboard           string    `gorm:"index" json:"clipboard"`
	CreatedAt           time.Time `gorm:"index;not null" json:"created_at"`
	IP                  *string   `gorm:"size:45" json:"-"`
}

func (r *InstallRecord) SaveInstallRecord(db *gorm.DB) (*InstallRecord, error) {
	if r.InstallID == "" {
		return nil, errors.New("install_id required")
	}
	if err := db.Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// FindAllInstallRecords scans the whole unresolved set. The heuristic search
// scores every record, so this is deliberately unbounded; the retention
// sweeper keeps the live set small.
func (r *InstallRecord) FindAllInstallRecords(db *gorm.DB) ([]InstallRecord, error) {
	records := []InstallRecord{}
	if err := db.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *InstallRecord) FindInstallRecordsByClipboard(db *gorm.DB, link string) ([]InstallRecord, error) {
	records := []InstallRecord{}
	if err := db.Where("clipboard = ?", link).Order("created_at asc").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *InstallRecord) FindInstallRecordByID(db *gorm.DB, installID string) (*InstallRecord, error) {
	var record InstallRecord
	err := db.Where("install_id = ?", installID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteInstallRecord is the single-use consume: a point delete by ID.
func (r *InstallRecord) DeleteInstallRecord(db *gorm.DB, installID string) error {
	return db.Where("install_id = ?", installID).Delete(&InstallRecord{}).Error
}

// FindStaleInstallIDs returns up to limit record IDs older than cutoff,
// oldest first.
func (r *InstallRecord) FindStaleInstallIDs(db *gorm.DB, cutoff time.Time, limit int) ([]string, error) {
	ids := []string{}
	err := db.Model(&InstallRecord{}).
		Where("created_at < ?", cutoff).
		Order("created_at asc").
		Limit(limit).
		Pluck("install_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteInstallRecords removes the given IDs in one statement.
func (r *InstallRecord) DeleteInstallRecords(db *gorm.DB, installIDs []string) (int64, error) {
	if len(installIDs) == 0 {
		return 0, nil
	}
	result := db.Where("install_id IN ?", installIDs).Delete(&InstallRecord{})
	return result.RowsAffected, result.Error
}

func (r *InstallRecord) CountInstallRecords(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&InstallRecord{}).Count(&count).Error
	return count, err
}
