package domain

// User Model. Users own wallets; deleting a user removes its wallets and their transactions.
type User struct {
	ID       uint     `gorm:"primaryKey"`                                                       // Primary key
	Username string   `gorm:"type:varchar(64);unique;not null"`                                 // Unique username
	Password string   `gorm:"not null"`                                                         // Hashed password
	Role     string   `gorm:"default:user"`                                                     // Role: user or admin
	Wallets  []Wallet `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"` // Up to three wallets
}

// RoleAdmin marks users allowed on admin routes
const RoleAdmin = "admin"

// IsAdmin reports whether the user has the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
