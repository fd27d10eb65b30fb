package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"kiosco/backend/internal/domain"
	"kiosco/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
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

func (s *userStoreStub) SetUserActive(_ context.Context, username string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Active = active
	s.users[username] = user
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	ctx := context.Background()
	userStore := plainAdminStore()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", userStore, nil)
	_, err := manager.Login(ctx, domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := userStore.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateEmployeeStoresPasswordHash(t *testing.T) {
	ctx := context.Background()
	userStore := plainAdminStore()

	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", userStore, nil)
	employee, err := manager.CreateEmployee(ctx, domain.EmployeeCreateRequest{
		Username: "Vendedora",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	if employee.Username != "vendedora" || employee.Role != domain.RoleCashier {
		t.Fatalf("unexpected employee %+v", employee)
	}

	saved, ok := userStore.users["vendedora"]
	if !ok {
		t.Fatalf("expected employee to be saved")
	}
	if !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", saved.Password)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "vendedora", Password: "pass1234"}); err != nil {
		t.Fatalf("login with hashed employee failed: %v", err)
	}

	_, err = manager.CreateEmployee(ctx, domain.EmployeeCreateRequest{Username: "vendedora", Password: "otra1234"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	employees := manager.ListEmployees(ctx)
	if len(employees) != 1 || employees[0].Username != "vendedora" {
		t.Fatalf("expected only the cashier account to be listed, got %+v", employees)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	ctx := context.Background()
	hash, err := hashPassword("secreto1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	userStore := &userStoreStub{users: map[string]domain.UserAccount{
		"baja": {Username: "baja", Password: hash, Role: domain.RoleCashier, Active: false},
	}}
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", userStore, nil)

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "baja", Password: "otro"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "baja", Password: "secreto1"}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestParseTokenRoundTripsActor(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", plainAdminStore(), nil)
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "admin" || !actor.IsAdmin() {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager(ctx, "another-secret", time.Hour, "123456", plainAdminStore(), nil)
	if _, err := other.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token signed with another secret to fail, got %v", err)
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, "654321", &userStoreStub{}, nil)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestDeactivatedEmployeeLosesAccess(t *testing.T) {
	ctx := context.Background()
	users := plainAdminStore()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, "123456", users, nil)

	if _, err := manager.CreateEmployee(ctx, domain.EmployeeCreateRequest{Username: "turno-noche", Password: "pass1234"}); err != nil {
		t.Fatalf("create employee failed: %v", err)
	}
	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "turno-noche", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	employee, err := manager.SetEmployeeActive(ctx, "Turno-Noche", false)
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if employee.Active || users.users["turno-noche"].Active {
		t.Fatalf("expected account to be stored inactive, got %+v", employee)
	}
	if _, err := manager.ParseToken(resp.AccessToken); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected issued token to be refused, got %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "turno-noche", Password: "pass1234"}); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}

	if _, err := manager.SetEmployeeActive(ctx, "turno-noche", true); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	if _, err := manager.ParseToken(resp.AccessToken); err != nil {
		t.Fatalf("expected token to work again, got %v", err)
	}

	if _, err := manager.SetEmployeeActive(ctx, "admin", false); !errors.Is(err, ErrEmployeeNotFound) {
		t.Fatalf("expected admin account to be out of reach, got %v", err)
	}
	if _, err := manager.SetEmployeeActive(ctx, "nadie", false); !errors.Is(err, ErrEmployeeNotFound) {
		t.Fatalf("expected ErrEmployeeNotFound, got %v", err)
	}
}
