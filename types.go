package veaauth

import (
	"time"

	"github.com/umarmf343/veaauth/directory"
	"github.com/umarmf343/veaauth/jwt"
	"github.com/umarmf343/veaauth/lockout"
	"github.com/umarmf343/veaauth/permission"
	"github.com/umarmf343/veaauth/refresh"
)

// Role is a portal account role.
type Role = permission.Role

const (
	RoleSuperAdmin = permission.SuperAdmin
	RoleAdmin      = permission.Admin
	RoleTeacher    = permission.Teacher
	RoleAccountant = permission.Accountant
	RoleLibrarian  = permission.Librarian
	RoleStudent    = permission.Student
	RoleParent     = permission.Parent
)

type (
	User          = directory.User
	UserStatus    = directory.Status
	UserDirectory = directory.Directory
	RefreshStore  = refresh.Store
	LockoutStore  = lockout.Store
	AccessClaims  = jwt.AccessClaims
)

const (
	StatusActive    = directory.StatusActive
	StatusInactive  = directory.StatusInactive
	StatusSuspended = directory.StatusSuspended
)

// TokenTypeBearer is the TokenType of every TokenPair.
const TokenTypeBearer = "Bearer"

// TokenPair is the credential set handed to a client after login or refresh.
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	TokenType             string    `json:"tokenType"`
}

// Session is the result of Login and RefreshSession. User never carries a
// password hash.
type Session struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// RegisterRequest is the input to RegisterUser.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
	Role     Role
	// Status defaults to active.
	Status UserStatus
}

// LockoutStatus describes the lockout state of one identifier.
type LockoutStatus struct {
	Identifier        string
	Locked            bool
	RemainingAttempts int
	RetryAfter        time.Duration
	LockoutUntil      time.Time
}

func publicUser(u User) User {
	u.PasswordHash = ""
	return u
}
