package models

import (
	"context"
	"errors"

	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A', 'O', 'T');default:T" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Email    string   `json:"email"`
	Password string   `json:"password" binding:"required"`
	Role     UserRole `json:"role"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleTechnician
	}
	active := true
	var email *string
	if input.Email != "" {
		email = &input.Email
	}
	user := User{
		Username: input.Username,
		Name:     input.Name,
		Email:    email,
		Password: string(hashed),
		IsActive: &active,
		Role:     role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Session is the narrow view the payment pipeline consumes: who is calling
// and which companies they may act for.
type Session struct {
	UserId             int             `json:"user_id"`
	UserName           string          `json:"user_name"`
	CompanyMemberships []CompanyMember `json:"company_memberships"`
}

// GetCurrentSession resolves the caller from the validated token claims in
// context, rejecting revoked tokens via the redis revocation set.
func GetCurrentSession(ctx context.Context) (*Session, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return nil, utils.ErrorUnauthorized
	}
	revoked, found, err := config.GetRedisValue("RevokedToken:" + token)
	if err != nil {
		return nil, err
	}
	if found && revoked != "" {
		return nil, utils.ErrorUnauthorized
	}

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, utils.ErrorUnauthorized
	}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("id = ? AND is_active = ?", userId, true).First(&user).Error; err != nil {
		return nil, utils.ErrorUnauthorized
	}

	memberships, err := ListMemberships(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserId:             user.ID,
		UserName:           user.Name,
		CompanyMemberships: memberships,
	}, nil
}

// Logout revokes the current session token.
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	if err := config.SetRedisValue("RevokedToken:"+token, "1", 30*24*time.Hour); err != nil {
		return false, err
	}
	return true, nil
}
