package news

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Article is one news item for a symbol. Title and published timestamp are
// always present; publisher and summary are best-effort.
type Article struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	PublishedUTC string  `json:"published_utc"`
	Source       string  `json:"source"`
	Summary      *string `json:"summary"`
}

// StoredPayload is the JSON shape persisted on a watched item.
type StoredPayload struct {
	Articles    []Article `json:"articles"`
	LastUpdated string    `json:"last_updated"`
}

// MarshalPayload packs articles with a fetch timestamp for persistence.
func MarshalPayload(articles []Article, fetchedAt time.Time) (datatypes.JSON, error) {
	payload := StoredPayload{
		Articles:    articles,
		LastUpdated: fetchedAt.UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

// ParsePayload unpacks a stored payload; malformed or empty data yields nil.
func ParsePayload(data datatypes.JSON) []Article {
	if len(data) == 0 {
		return nil
	}
	var payload StoredPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	return payload.Articles
}
