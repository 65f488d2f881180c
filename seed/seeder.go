package seed

import (
	"log"

	"traceback/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var links = []models.DynamicLink{
	{
		Path:        "/default",
		Title:       "Default campaign",
		Description: "Fallback campaign used when a click carries no path.",
		FollowLink:  "https://example.com/welcome",
	},
	{
		Path:        "/summer",
		Title:       "Summer promo",
		Description: "Seasonal landing page.",
		FollowLink:  "https://example.com/summer?utm_source=traceback&utm_medium=deeplink",
	},
}

// Load seeds sample campaign links and a development API key. Intended for
// local development only; existing rows are left alone.
func Load(db *gorm.DB) {
	for i := range links {
		existing, err := links[i].FindDynamicLinkByPath(db, links[i].Path)
		if err != nil {
			log.Fatalf("cannot check campaign links table: %v", err)
		}
		if existing != nil {
			continue
		}
		links[i].Prepare()
		if _, err := links[i].SaveDynamicLink(db); err != nil {
			log.Fatalf("cannot seed campaign links table: %v", err)
		}
	}

	var count int64
	if err := db.Model(&models.APIKey{}).Count(&count).Error; err != nil {
		log.Fatalf("cannot check api keys table: %v", err)
	}
	if count == 0 {
		key := models.APIKey{
			ID:    uuid.New(),
			Value: "dev-" + uuid.NewString(),
			Label: "development",
		}
		key.Prepare()
		if _, err := key.SaveAPIKey(db); err != nil {
			log.Fatalf("cannot seed api keys table: %v", err)
		}
		log.Printf("[seed] created development API key: %s", key.Value)
	}
}
