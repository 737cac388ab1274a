package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

// AuthService handles accounts and bearer tokens
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.JWTManager
	hasher *auth.PasswordHasher
}

func NewAuthService(users repository.UserRepository, tokens *auth.JWTManager, hasher *auth.PasswordHasher) *AuthService {
	return &AuthService{users: users, tokens: tokens, hasher: hasher}
}

type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=30"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	FirstName string `json:"firstName" validate:"max=50"`
	LastName  string `json:"lastName" validate:"max=50"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is a freshly issued token with its owner
type Session struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         domain.RoleCustomer,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return nil, err
	}
	return s.issue(&u)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.IsActive || !s.hasher.Verify(in.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *domain.User) (*Session, error) {
	token, err := s.tokens.Generate(u.ID.Hex(), string(u.Role))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, User: u}, nil
}

// Authenticate resolves a bearer token to an active user.
// Token failures keep the auth package errors so callers can tell expiry apart.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", ErrUnauthorized)
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, fmt.Errorf("%w: user is inactive", ErrUnauthorized)
	}
	return u, nil
}

func (s *AuthService) Profile(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// ProfileUpdate changes the shopper's contact details; nil fields are kept
type ProfileUpdate struct {
	FirstName       *string         `json:"firstName" validate:"omitempty,max=50"`
	LastName        *string         `json:"lastName" validate:"omitempty,max=50"`
	Phone           *string         `json:"phone" validate:"omitempty,max=30"`
	ShippingAddress *domain.Address `json:"shippingAddress"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd ProfileUpdate) (*domain.User, error) {
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.ShippingAddress != nil {
		addr := *upd.ShippingAddress
		u.ShippingAddress = &addr
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureAdmin creates the account (or promotes an existing one) with the admin role
func (s *AuthService) EnsureAdmin(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == domain.RoleAdmin && u.IsActive {
			return u, nil
		}
		u.Role = domain.RoleAdmin
		u.IsActive = true
		if err := s.users.Update(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	sess, err := s.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	u = sess.User
	u.Role = domain.RoleAdmin
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
