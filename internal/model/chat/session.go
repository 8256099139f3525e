package chat

import (
	"encoding/json"
	"time"
)

// Location is a birth place expressed as coordinates.
type Location struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// BirthDetails captures what the user told us about their birth.
type BirthDetails struct {
	Date     string    `json:"date"` // YYYY-MM-DD
	Time     string    `json:"time"` // HH:mm
	Location *Location `json:"location"`
}

// Coordinates returns latitude and longitude; callers must validate first.
func (b BirthDetails) Coordinates() (float64, float64) {
	return *b.Location.Lat, *b.Location.Lon
}

// Session binds a conversation identifier to cached chart data and its turn history.
type Session struct {
	ID           string          `json:"id"`
	BirthDetails BirthDetails    `json:"birthDetails"`
	ChartData    json.RawMessage `json:"chartData"`
	History      []Turn          `json:"history"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Clone returns a deep copy so stores never share history slices with callers.
func (s Session) Clone() Session {
	c := s
	if s.BirthDetails.Location != nil {
		loc := Location{}
		if s.BirthDetails.Location.Lat != nil {
			lat := *s.BirthDetails.Location.Lat
			loc.Lat = &lat
		}
		if s.BirthDetails.Location.Lon != nil {
			lon := *s.BirthDetails.Location.Lon
			loc.Lon = &lon
		}
		c.BirthDetails.Location = &loc
	}
	c.ChartData = append(json.RawMessage(nil), s.ChartData...)
	c.History = append([]Turn(nil), s.History...)
	return c
}

// Organic returns the turns exchanged after the priming pair.
func (s Session) Organic() []Turn {
	if len(s.History) <= PrimingTurns {
		return nil
	}
	return append([]Turn(nil), s.History[PrimingTurns:]...)
}
