package chat

import (
	"time"

	"github.com/zhouzirui/astro-tavern/backend/internal/model/chat"
)

// ValidateBirthDetails checks the request shape before any gateway is contacted.
func ValidateBirthDetails(details *chat.BirthDetails) error {
	if details == nil {
		return &ValidationError{Field: "birthDetails", Message: missingBirthDetailsMessage}
	}
	if details.Location == nil || details.Location.Lat == nil || details.Location.Lon == nil {
		return &ValidationError{Field: "birthDetails.location", Message: missingBirthDetailsMessage}
	}
	lat, lon := *details.Location.Lat, *details.Location.Lon
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return &ValidationError{Field: "birthDetails.location", Message: "Birth location coordinates are out of range."}
	}
	if _, err := time.Parse(birthDateLayout, details.Date); err != nil {
		return &ValidationError{Field: "birthDetails.date", Message: "Birth date must use the YYYY-MM-DD format."}
	}
	if _, err := time.Parse(birthTimeLayout, details.Time); err != nil {
		return &ValidationError{Field: "birthDetails.time", Message: "Birth time must use the HH:mm format."}
	}
	return nil
}
