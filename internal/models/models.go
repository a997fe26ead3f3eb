package models

import "time"

// User roles
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Cart statuses
const (
	CartStatusActive    = "active"
	CartStatusCompleted = "completed"
	CartStatusAbandoned = "abandoned"
)

// User represents an account that can sign in
type User struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user holds the administrator role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Product represents a catalog entry
type Product struct {
	ID         int64      `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Category   string     `db:"category" json:"category"`
	Price      Money      `db:"price" json:"price"`
	Stock      int        `db:"stock" json:"stock"`
	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Archived reports whether the product was soft-deleted
func (p *Product) Archived() bool {
	return p.ArchivedAt != nil
}

// Cart represents a shopping cart owned by one user
type Cart struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is one product pending purchase inside a cart
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// CartLineView is a cart line joined with live product fields
type CartLineView struct {
	ID          int64  `db:"id" json:"id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Category    string `db:"category" json:"category"`
	UnitPrice   Money  `db:"unit_price" json:"unit_price"`
	Stock       int    `db:"stock" json:"stock"`
	Archived    bool   `db:"archived" json:"archived"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Subtotal    Money  `db:"-" json:"subtotal"`
}

// Available reports whether the line could be checked out against current stock
func (l *CartLineView) Available() bool {
	return !l.Archived && l.Quantity <= l.Stock
}

// CartView is the read projection of a user's active cart
type CartView struct {
	CartID int64          `json:"cart_id,omitempty"`
	Empty  bool           `json:"empty"`
	Lines  []CartLineView `json:"lines"`
	Total  Money          `json:"total"`
}

// Order represents an immutable completed purchase
type Order struct {
	ID             int64       `db:"id" json:"id"`
	UserID         int64       `db:"user_id" json:"user_id"`
	Total          Money       `db:"total" json:"total"`
	IdempotencyKey *string     `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	Lines          []OrderLine `db:"-" json:"lines,omitempty"`
}

// OrderLine represents one purchased product with its price at purchase time
type OrderLine struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	UnitPrice   Money  `db:"unit_price" json:"unit_price"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Subtotal    Money  `db:"subtotal" json:"subtotal"`
}

// Session is a signed-in user's handle held by the session store
type Session struct {
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
