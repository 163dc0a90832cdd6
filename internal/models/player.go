package models

import "time"

// Player represents a participant and their cumulative record.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	BestTime     time.Duration `json:"bestTime,omitempty"`
	AverageTime  time.Duration `json:"averageTime,omitempty"`
	BestSpeed    float64       `json:"bestSpeed,omitempty"`
	AverageSpeed float64       `json:"averageSpeed,omitempty"`
	TotalMatches int           `json:"totalMatches"`
	Wins         int           `json:"wins"`
}
