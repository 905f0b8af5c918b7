package models

import "time"

// Plan is a pricing option selectable during the wizard. Discount math is a
// display concern handled by the frontend.
type Plan struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Type        string    `db:"type" json:"type"`
	Price       float64   `db:"price" json:"price"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
