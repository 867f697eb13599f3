// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the single record type in the directory.
//
// ID, CreatedAt and UpdatedAt are assigned by the store. Email is unique
// across the collection; the store's UNIQUE index enforces that, not the
// application.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Age       int       `json:"age"`
	City      string    `json:"city"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateUserRequest is the body of POST /api/users.
//
// WHY POINTERS?
// A nil pointer means "the client did not send this field", which is different
// from an empty string or a zero age. The validator needs that difference to
// tell "required" failures apart from "too short" failures.
//
// Age is decoded as a float so that 25.5 reaches the validator and is reported
// as "must be an integer" instead of failing inside encoding/json. safeint
// keeps it within ±(2^53-1), so the int conversion below cannot overflow.
type CreateUserRequest struct {
	Username *string  `json:"username" validate:"required,min=3,max=30"`
	Email    *string  `json:"email"    validate:"required,email"`
	Age      *float64 `json:"age"      validate:"required,integer,safeint,min=0"`
	City     *string  `json:"city"     validate:"required,min=2,max=50"`
}

// User converts a validated request into a record ready for insertion.
func (r CreateUserRequest) User() *User {
	u := &User{}
	if r.Username != nil {
		u.Username = *r.Username
	}
	if r.Email != nil {
		u.Email = *r.Email
	}
	if r.Age != nil {
		u.Age = int(*r.Age)
	}
	if r.City != nil {
		u.City = *r.City
	}
	return u
}

// UpdateUserRequest is the body of PUT /api/users/{id}. Every field is
// optional but at least one must be present.
type UpdateUserRequest struct {
	Username *string  `json:"username" validate:"omitempty,min=3,max=30"`
	Email    *string  `json:"email"    validate:"omitempty,email"`
	Age      *float64 `json:"age"      validate:"omitempty,integer,safeint,min=0"`
	City     *string  `json:"city"     validate:"omitempty,min=2,max=50"`
}

// Patch converts a validated request into the partial update applied by the store.
func (r UpdateUserRequest) Patch() UserPatch {
	p := UserPatch{
		Username: r.Username,
		Email:    r.Email,
		City:     r.City,
	}
	if r.Age != nil {
		age := int(*r.Age)
		p.Age = &age
	}
	return p
}

// UserPatch holds the fields touched by a partial update. Nil means unchanged.
type UserPatch struct {
	Username *string
	Email    *string
	Age      *int
	City     *string
}

// Empty reports whether the patch touches no field at all.
func (p UserPatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Age == nil && p.City == nil
}

// Apply copies the touched fields onto u.
func (p UserPatch) Apply(u *User) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Age != nil {
		u.Age = *p.Age
	}
	if p.City != nil {
		u.City = *p.City
	}
}
