package models

import "time"

// Product is a licensable product. ProductCode is the identifier written
// into licenses as product_id.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	ProductCode string    `json:"product_code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
