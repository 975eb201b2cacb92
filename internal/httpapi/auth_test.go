package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"cafeops/backend/internal/domain"
	"cafeops/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:   "admin",
				Password:   "admin123",
				EmployeeID: "emp-admin",
				Roles:      []domain.Role{domain.RoleAdmin},
				Active:     true,
				CreatedAt:  time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, users)
	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "Admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.EmployeeID != "emp-admin" || len(resp.Roles) != 1 || resp.Roles[0] != "ADMIN" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	if users.updates != 1 {
		t.Fatalf("expected one password upgrade, got %d", users.updates)
	}
	stored := users.users["admin"].Password
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login after upgrade failed: %v", err)
	}
}

func TestAuthManagerRejectsInactiveAndWrongPassword(t *testing.T) {
	hash, err := hashPassword("pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"former": {Username: "former", Password: hash, Roles: []domain.Role{domain.RoleStaff}, Active: false},
			"active": {Username: "active", Password: hash, Roles: []domain.Role{domain.RoleStaff}, Active: true},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, users)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "former", Password: "pass1234"}); err == nil {
		t.Fatalf("expected inactive account to be rejected")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "active", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "pass1234"}); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}

func TestParseTokenCarriesActor(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})
	token, err := manager.sign("barista", "emp-barista", []string{"ROLE_STAFF", "bogus"}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "barista" || actor.EmployeeID != "emp-barista" {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if len(actor.Roles) != 1 || actor.Roles[0] != domain.RoleStaff {
		t.Fatalf("expected only STAFF role, got %v", actor.Roles)
	}
}

func TestParseTokenRejectsExpiredForeignAndRoleless(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	expired, _ := manager.sign("admin", "emp-admin", []string{"ADMIN"}, time.Now().Add(-time.Minute))
	if _, err := manager.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := NewAuthManager("another-secret", time.Hour, &userStoreStub{})
	foreign, _ := other.sign("admin", "emp-admin", []string{"ADMIN"}, time.Now().Add(time.Minute))
	if _, err := manager.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	roleless, _ := manager.sign("admin", "emp-admin", nil, time.Now().Add(time.Minute))
	if _, err := manager.ParseToken(roleless); err == nil {
		t.Fatalf("expected token without roles to be rejected")
	}

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, cafeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "admin"},
		Roles:            []string{"ADMIN"},
	})
	unsigned, _ := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
