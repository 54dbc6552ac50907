// internal/model/contact.go
package model

type Contact struct {
	ID      string `db:"id" json:"id"`
	OwnerID string `db:"owner_id" json:"ownerId"`
	Name    string `db:"name" json:"name"`
	Phone   string `db:"phone" json:"phone"`
}
