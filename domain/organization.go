package domain

import "time"

// Organization kinds.
const (
	OrganizationPharmacy    = "pharmacy"
	OrganizationDistributor = "distributor"
)

// Organization is the tenant. Every other record is scoped by it.
type Organization struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Kind              string    `db:"kind" json:"kind"`
	Address           string    `db:"address" json:"address"`
	Phone             string    `db:"phone" json:"phone"`
	Email             string    `db:"email" json:"email"`
	AcceptsBulkOrders bool      `db:"accepts_bulk_orders" json:"accepts_bulk_orders"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Branch is a physical location of an organization.
type Branch struct {
	ID             int64     `db:"id" json:"id"`
	OrganizationID int64     `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	Address        string    `db:"address" json:"address"`
	Phone          string    `db:"phone" json:"phone"`
	IsMain         bool      `db:"is_main" json:"is_main"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
