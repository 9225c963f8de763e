// Package model holds records shared between the store, the API and the
// event publisher.
package model

import "time"

// RewardEvent is one issued reward, as recorded in the ledger. Lat and Lng
// are nil when the reward was scored from an explicit index.
type RewardEvent struct {
	ID             string    `json:"id"`
	Lat            *float64  `json:"lat,omitempty"`
	Lng            *float64  `json:"lng,omitempty"`
	Citizen        string    `json:"citizen_category"`
	Classification string    `json:"classification"`
	DirtinessIndex float64   `json:"dirtiness_index"`
	Value          float64   `json:"value"`
	Label          string    `json:"label"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// RewardFilter narrows a ledger listing.
type RewardFilter struct {
	Citizen string `json:"citizen_category,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
