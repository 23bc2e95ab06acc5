package project

import "time"

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input carries create/update fields. Nil pointers on update mean
// "keep the stored value". The owner is never taken from the client.
type Input struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}
