package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"fuelstation/backend/internal/domain"
	"fuelstation/backend/internal/store/memory"
)

func TestLoginAndParseTokenRoundtrip(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "manager",
		Password: "plain-secret",
		Role:     domain.RoleManager,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	auth := NewAuthManager("roundtrip-secret", time.Hour, repo)

	resp, err := auth.Login(domain.LoginRequest{Username: "Manager", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "manager" {
		t.Fatalf("expected manager role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "manager" || actor.Role != domain.RoleManager {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "attendant",
		Password: "plain-secret",
		Role:     domain.RoleStaff,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	NewAuthManager("upgrade-secret", time.Hour, repo)

	stored, err := repo.GetUserByUsername(context.Background(), "attendant")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected bcrypt hash after bootstrap, got %q", stored.Password)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "manager",
		Password: "plain-secret",
		Role:     domain.RoleManager,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	issuer := NewAuthManager("secret-one", time.Hour, repo)
	resp, err := issuer.Login(domain.LoginRequest{Username: "manager", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager("secret-two", time.Hour, repo)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	repo := memory.New()
	auth := NewAuthManager("inactive-secret", time.Hour, repo)

	auth.mu.Lock()
	auth.users["retired"] = credential{
		password: mustHash(t, "plain-secret"),
		role:     domain.RoleStaff,
		active:   false,
		created:  time.Now().UTC(),
	}
	auth.mu.Unlock()

	if _, err := auth.Login(domain.LoginRequest{Username: "retired", Password: "plain-secret"}); err == nil {
		t.Fatalf("expected inactive account login to fail")
	}
}

func TestCreateStaffValidation(t *testing.T) {
	auth := NewAuthManager("staff-secret", time.Hour, memory.New())

	cases := []struct {
		name string
		req  domain.StaffCreateRequest
	}{
		{"short username", domain.StaffCreateRequest{Username: "ab", Password: "secret99"}},
		{"username with spaces", domain.StaffCreateRequest{Username: "new hire", Password: "secret99"}},
		{"short password", domain.StaffCreateRequest{Username: "newhire", Password: "123"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.CreateStaff(tc.req); err == nil {
				t.Fatalf("expected %s to be rejected", tc.name)
			}
		})
	}

	staff, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "NewHire", Password: "secret99"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "newhire" {
		t.Fatalf("expected lowercased username, got %s", staff.Username)
	}

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "newhire", Password: "secret99"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	listed := auth.ListStaff()
	if len(listed) != 1 || listed[0].Username != "newhire" {
		t.Fatalf("expected one staff account, got %+v", listed)
	}
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := hashPassword(plain)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}
