package models

import (
	"strconv"
)

// Role is the user type id stored in the users table.
type Role int

const (
	RoleSuperAdmin Role = 0
	RoleAdmin      Role = 1
	RoleUser       Role = 2
)

// CanManage reports whether the role is allowed to mutate resources.
func (r Role) CanManage() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// GlobalCompany is the company id sentinel marking a user that is not bound
// to a single company.
const GlobalCompany = "*"

type Company struct {
	CID    uint   `json:"cid" gorm:"column:cid;primaryKey"`
	Name   string `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Enable int    `json:"enable" gorm:"default:1"`
}

func (Company) TableName() string {
	return "companies"
}

// User carries its company id as a string so the "*" sentinel fits in the
// same column as numeric ids.
type User struct {
	UID            uint   `json:"uid" gorm:"column:uid;primaryKey"`
	Name           string `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Email          string `json:"email" gorm:"type:varchar(255);not null"`
	HashedPassword string `json:"-" gorm:"column:hashed_password;type:varchar(255);not null"`
	Enable         int    `json:"enable" gorm:"default:1"`
	CID            string `json:"cid" gorm:"column:cid;type:varchar(64)"`
	UTID           Role   `json:"utid" gorm:"column:utid"`
}

func (User) TableName() string {
	return "users"
}

// UserRecord is the read shape joined with the company name.
type UserRecord struct {
	User
	CName string `json:"cname" gorm:"column:cname"`
}

// Identity is what the session cache stores for an authenticated user.
type Identity struct {
	UID   uint   `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"utid"`
	CID   string `json:"cid"`
}

// Global reports whether the identity spans all companies.
func (i Identity) Global() bool {
	return i.CID == GlobalCompany
}

// CompanyID parses the numeric company id. The second return is false for
// global identities and malformed values.
func (i Identity) CompanyID() (uint, bool) {
	if i.Global() {
		return 0, false
	}
	cid, err := strconv.ParseUint(i.CID, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(cid), true
}
