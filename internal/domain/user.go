package domain

// User is an identity mirrored from the external identity provider.
// Credentials never live here; ExternalID links the record to the provider.
type User struct {
	BaseModel
	ExternalID *string `gorm:"size:255;uniqueIndex" json:"externalId"`
	Email      string  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName  *string `gorm:"size:100" json:"firstName"`
	LastName   *string `gorm:"size:100" json:"lastName"`
	ImageURL   *string `gorm:"size:1024" json:"imageUrl"`
	Roles      []Role  `gorm:"many2many:user_roles" json:"roles,omitempty"`
	Groups     []Group `gorm:"many2many:user_groups" json:"groups,omitempty"`
}

// FullName joins the first and last name, skipping missing parts.
func (u *User) FullName() string {
	var first, last string
	if u.FirstName != nil {
		first = *u.FirstName
	}
	if u.LastName != nil {
		last = *u.LastName
	}
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
