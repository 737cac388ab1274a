package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/repository"
)

func setupAuth(t *testing.T) (*AuthService, *repository.MemoryUsers, *auth.JWTManager) {
	t.Helper()
	users := repository.NewMemoryUsers(repository.NewMemoryStore())
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	return NewAuthService(users, tokens, auth.NewPasswordHasherWithCost(bcrypt.MinCost)), users, tokens
}

func TestAuth_RegisterLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupAuth(t)

	sess, err := svc.Register(ctx, RegisterInput{Username: "jane", Email: " Jane@Example.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Token == "" || sess.User.Role != domain.RoleCustomer || sess.User.Email != "jane@example.com" {
		t.Fatalf("unexpected session %+v", sess.User)
	}
	if sess.User.PasswordHash == "secret1" {
		t.Fatalf("password stored in clear")
	}

	if _, err := svc.Login(ctx, LoginInput{Email: "jane@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email must look like a bad password, got %v", err)
	}
	login, err := svc.Login(ctx, LoginInput{Email: "JANE@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	u, err := svc.Authenticate(ctx, login.Token)
	if err != nil || u.ID != sess.User.ID {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestAuth_RegisterValidationAndDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupAuth(t)

	bad := []RegisterInput{
		{Username: "jo", Email: "jo@example.com", Password: "secret1"},
		{Username: "jonas", Email: "not-an-email", Password: "secret1"},
		{Username: "jonas", Email: "jo@example.com", Password: "123"},
	}
	for _, in := range bad {
		if _, err := svc.Register(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: expected invalid input, got %v", in, err)
		}
	}

	if _, err := svc.Register(ctx, RegisterInput{Username: "jonas", Email: "jo@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	var dup *repository.DuplicateError
	if _, err := svc.Register(ctx, RegisterInput{Username: "other", Email: "JO@example.com", Password: "secret1"}); !errors.As(err, &dup) || dup.Field != "email" {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestAuth_InactiveUser(t *testing.T) {
	ctx := context.Background()
	svc, users, tokens := setupAuth(t)
	sess, err := svc.Register(ctx, RegisterInput{Username: "sam", Email: "sam@example.com", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	u := sess.User
	u.IsActive = false
	if err := users.Update(ctx, u); err != nil {
		t.Fatal(err)
	}
	token, _ := tokens.Generate(u.ID.Hex(), string(u.Role))
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "sam@example.com", Password: "secret1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive users cannot log in, got %v", err)
	}
}

func TestAuth_ProfileAndEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupAuth(t)
	sess, _ := svc.Register(ctx, RegisterInput{Username: "kim", Email: "kim@example.com", Password: "secret1"})

	first := "Kim"
	addr := domain.Address{Street: "1 Elm", City: "Town", ZipCode: "1000", Country: "US"}
	u, err := svc.UpdateProfile(ctx, sess.User.ID, ProfileUpdate{FirstName: &first, ShippingAddress: &addr})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if u.FirstName != "Kim" || u.ShippingAddress == nil || u.ShippingAddress.City != "Town" {
		t.Fatalf("profile not updated: %+v", u)
	}
	got, _ := svc.Profile(ctx, sess.User.ID)
	if got.FirstName != "Kim" {
		t.Fatalf("profile not persisted")
	}

	admin, err := svc.EnsureAdmin(ctx, RegisterInput{Username: "kim", Email: "kim@example.com", Password: "secret1"})
	if err != nil || admin.Role != domain.RoleAdmin || admin.ID != sess.User.ID {
		t.Fatalf("promote existing user: %+v %v", admin, err)
	}
	fresh, err := svc.EnsureAdmin(ctx, RegisterInput{Username: "root", Email: "root@example.com", Password: "secret1"})
	if err != nil || fresh.Role != domain.RoleAdmin {
		t.Fatalf("create admin: %v", err)
	}
}
