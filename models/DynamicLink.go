package models

import (
	"errors"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DynamicLink is a registered campaign: a short path that redirects to a
// follow link, with optional preview metadata.
type DynamicLink struct {
	ID          uuid.UUID  `gorm:"primary_key;type:uuid" json:"id"`
	Path        string     `gorm:"size:255;not null;uniqueIndex" json:"path"`
	Title       string     `gorm:"size:255" json:"title"`
	Description string     `gorm:"text" json:"description"`
	Image       string     `json:"image"`
	FollowLink  string     `json:"follow_link"`
	Expires     *time.Time `json:"expires,omitempty"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (l *DynamicLink) Prepare() {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Path = strings.TrimSpace(l.Path)
	l.Title = html.EscapeString(strings.TrimSpace(l.Title))
	l.Description = html.EscapeString(strings.TrimSpace(l.Description))
	l.FollowLink = strings.TrimSpace(l.FollowLink)
	l.CreatedAt = time.Now()
	l.UpdatedAt = time.Now()
}

func (l *DynamicLink) Validate() map[string]string {
	errorMessages := make(map[string]string)

	if l.Path == "" {
		errorMessages["Required_path"] = "required path"
	} else if !strings.HasPrefix(l.Path, "/") {
		errorMessages["Invalid_path"] = "path must start with /"
	} else if l.Path == "/" {
		errorMessages["Invalid_path"] = "path must not be the site root"
	}
	if l.FollowLink == "" {
		errorMessages["Required_follow_link"] = "required follow_link"
	}
	return errorMessages
}

func (l *DynamicLink) SaveDynamicLink(db *gorm.DB) (*DynamicLink, error) {
	if err := db.Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// FindDynamicLinkByPath is the equality lookup behind campaign resolution.
// A nil result without error means the path is not registered.
func (l *DynamicLink) FindDynamicLinkByPath(db *gorm.DB, path string) (*DynamicLink, error) {
	var link DynamicLink
	err := db.Where("path = ?", path).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (l *DynamicLink) FindDynamicLinkByID(db *gorm.DB, id uuid.UUID) (*DynamicLink, error) {
	var link DynamicLink
	err := db.First(&link, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (l *DynamicLink) FindAllDynamicLinks(db *gorm.DB) ([]DynamicLink, error) {
	links := []DynamicLink{}
	if err := db.Order("created_at desc").Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (l *DynamicLink) DeleteDynamicLink(db *gorm.DB, id uuid.UUID) (int64, error) {
	result := db.Delete(&DynamicLink{}, "id = ?", id)
	return result.RowsAffected, result.Error
}
