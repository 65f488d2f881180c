package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LinkEventType names the counters tracked per campaign link.
type LinkEventType string

const (
	LinkEventClick   LinkEventType = "clicks"
	LinkEventOpen    LinkEventType = "opens"
	LinkEventInstall LinkEventType = "installs"
	LinkEventReopen  LinkEventType = "reopens"
)

// LinkAnalytics holds daily event counters for one campaign link, sharded by
// day so writes stay cheap and reads can be ranged.
type LinkAnalytics struct {
	ID       uint      `gorm:"primary_key;autoIncrement" json:"id"`
	LinkID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_link_analytics_day" json:"link_id"`
	Day      string    `gorm:"size:10;not null;uniqueIndex:idx_link_analytics_day" json:"day"`
	Clicks   int       `gorm:"default:0" json:"clicks"`
	Opens    int       `gorm:"default:0" json:"opens"`
	Installs int       `gorm:"default:0" json:"installs"`
	Reopens  int       `gorm:"default:0" json:"reopens"`
}

// TrackLinkEvent increments today's counter for the given link and event
// inside a transaction, creating the day row on first use.
func (a *LinkAnalytics) TrackLinkEvent(db *gorm.DB, linkID uuid.UUID, event LinkEventType) error {
	day := time.Now().UTC().Format("2006-01-02")

	return db.Transaction(func(tx *gorm.DB) error {
		var row LinkAnalytics
		err := tx.Where("link_id = ? AND day = ?", linkID, day).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = LinkAnalytics{LinkID: linkID, Day: day}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return tx.Model(&row).
			UpdateColumn(string(event), gorm.Expr(string(event)+" + ?", 1)).Error
	})
}

func (a *LinkAnalytics) FindLinkAnalytics(db *gorm.DB, linkID uuid.UUID) ([]LinkAnalytics, error) {
	rows := []LinkAnalytics{}
	if err := db.Where("link_id = ?", linkID).Order("day desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
