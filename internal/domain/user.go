package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type UserKind string

const (
	KindGuest        UserKind = "guest"
	KindEmployee     UserKind = "employee"
	KindOrganization UserKind = "organization"
)

func IsValidKind(kind string) bool {
	switch UserKind(kind) {
	case KindGuest, KindEmployee, KindOrganization:
		return true
	}
	return false
}

var phoneRegex = regexp.MustCompile(`^\+?\d{10,15}$`)

// User is the single identity record for guests, employees and organizations.
// Guests carry no phone; organizations may additionally carry login credentials.
type User struct {
	ID                string          `json:"id"`
	Kind              UserKind        `json:"kind"`
	Phone             *string         `json:"phone,omitempty"`
	Login             *string         `json:"login,omitempty"`
	PasswordHash      *string         `json:"-"`
	Name              *string         `json:"name,omitempty"`
	Email             *string         `json:"email,omitempty"`
	AvatarURL         *string         `json:"avatar_url,omitempty"`
	Goal              *string         `json:"goal,omitempty"`
	PaymentGoal       *string         `json:"payment_goal,omitempty"`
	OrganizationID    *string         `json:"organization_id,omitempty"`
	StripeCustomerID  *string         `json:"-"`
	Balance           decimal.Decimal `json:"balance"`
	IsProfileComplete bool            `json:"is_profile_complete"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ProfileComplete reports whether the profile has every required field for
// its kind. Employees need name and phone, organizations need name and login.
// Guest profiles are never complete. The flag on the record is always derived
// from this function, never set by a client.
func ProfileComplete(u *User) bool {
	switch u.Kind {
	case KindEmployee:
		return present(u.Name) && present(u.Phone)
	case KindOrganization:
		return present(u.Name) && present(u.Login)
	default:
		return false
	}
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// UserInfo is the public view of a user, without credentials or gateway handles.
type UserInfo struct {
	ID                string          `json:"id"`
	Kind              UserKind        `json:"kind"`
	Phone             *string         `json:"phone,omitempty"`
	Name              *string         `json:"name,omitempty"`
	Email             *string         `json:"email,omitempty"`
	AvatarURL         *string         `json:"avatar_url,omitempty"`
	Goal              *string         `json:"goal,omitempty"`
	PaymentGoal       *string         `json:"payment_goal,omitempty"`
	Balance           decimal.Decimal `json:"balance"`
	IsProfileComplete bool            `json:"is_profile_complete"`
}

func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:                u.ID,
		Kind:              u.Kind,
		Phone:             u.Phone,
		Name:              u.Name,
		Email:             u.Email,
		AvatarURL:         u.AvatarURL,
		Goal:              u.Goal,
		PaymentGoal:       u.PaymentGoal,
		Balance:           u.Balance,
		IsProfileComplete: u.IsProfileComplete,
	}
}

type SendCodeRequest struct {
	Phone string `json:"phone_number"`
}

func (r *SendCodeRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *SendCodeRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !phoneRegex.MatchString(r.Phone) {
		return fmt.Errorf("invalid phone number format, use international format, e.g. +1234567890")
	}
	return nil
}

type VerifyCodeRequest struct {
	Phone string `json:"phone_number"`
	Code  string `json:"code"`
	Kind  string `json:"kind,omitempty"`
}

func (r *VerifyCodeRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Code = strings.TrimSpace(r.Code)
	r.Kind = strings.TrimSpace(strings.ToLower(r.Kind))
	if r.Kind == "" {
		r.Kind = string(KindEmployee)
	}
}

func (r *VerifyCodeRequest) Validate() error {
	if r.Phone == "" || r.Code == "" {
		return fmt.Errorf("phone number and code are required")
	}
	if !phoneRegex.MatchString(r.Phone) {
		return fmt.Errorf("invalid phone number format")
	}
	if r.Kind != string(KindEmployee) && r.Kind != string(KindOrganization) {
		return fmt.Errorf("kind must be employee or organization")
	}
	return nil
}

type OrganizationLoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (r *OrganizationLoginRequest) Normalize() {
	r.Login = strings.TrimSpace(strings.ToLower(r.Login))
}

func (r *OrganizationLoginRequest) Validate() error {
	if r.Login == "" || r.Password == "" {
		return fmt.Errorf("login and password are required")
	}
	return nil
}

type RegisterOrganizationRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone_number,omitempty"`
}

func (r *RegisterOrganizationRequest) Normalize() {
	r.Login = strings.TrimSpace(strings.ToLower(r.Login))
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *RegisterOrganizationRequest) Validate() error {
	if r.Login == "" {
		return fmt.Errorf("login is required")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Phone != "" && !phoneRegex.MatchString(r.Phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}

type UpdateProfileRequest struct {
	Name        *string `json:"name,omitempty"`
	Email       *string `json:"email,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Goal        *string `json:"goal,omitempty"`
	PaymentGoal *string `json:"payment_goal,omitempty"`
}

type CreateEmployeeRequest struct {
	Phone string  `json:"phone_number"`
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

func (r *CreateEmployeeRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *CreateEmployeeRequest) Validate() error {
	if r.Phone == "" {
		return fmt.Errorf("phone number is required")
	}
	if !phoneRegex.MatchString(r.Phone) {
		return fmt.Errorf("invalid phone number format")
	}
	return nil
}
