package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestLoginFlow(t *testing.T) {
	a := newTestAPI(t)

	if w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ghost", Password: "whatever-123"}); w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user login = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ops", Password: "wrong-password"}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password login = %d", w.Code)
	}

	w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ops", Password: "ops-pass-12345"})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d %s", w.Code, w.Body.String())
	}
	var resp LoginResponse
	decode(t, w, &resp)
	if resp.Token == "" || resp.Username != "ops" || resp.IsAdmin {
		t.Errorf("login response = %+v", resp)
	}

	var check map[string]interface{}
	decode(t, a.do(t, http.MethodGet, "/api/auth/check", resp.Token, nil), &check)
	if check["authenticated"] != true || check["username"] != "ops" {
		t.Errorf("auth check = %v", check)
	}

	decode(t, a.do(t, http.MethodGet, "/api/auth/check", "", nil), &check)
	if check["authenticated"] != false {
		t.Errorf("anonymous auth check = %v", check)
	}

	user, err := a.store.GetUserByUsername(context.Background(), "ops")
	if err != nil {
		t.Fatalf("loading user: %v", err)
	}
	if user.LastLogin == nil {
		t.Error("login did not record last_login")
	}

	if w := a.do(t, http.MethodPost, "/api/auth/logout", resp.Token, nil); w.Code != http.StatusOK {
		t.Errorf("logout = %d", w.Code)
	}
}

func TestChangePassword(t *testing.T) {
	a := newTestAPI(t)

	if w := a.do(t, http.MethodPost, "/api/auth/change-password", a.userTok, ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "fresh-pass-123",
	}); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password = %d", w.Code)
	}

	if w := a.do(t, http.MethodPost, "/api/auth/change-password", a.userTok, ChangePasswordRequest{
		CurrentPassword: "ops-pass-12345",
		NewPassword:     "short",
	}); w.Code != http.StatusBadRequest {
		t.Errorf("short new password = %d", w.Code)
	}

	w := a.do(t, http.MethodPost, "/api/auth/change-password", a.userTok, ChangePasswordRequest{
		CurrentPassword: "ops-pass-12345",
		NewPassword:     "fresh-pass-123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("change password = %d %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	decode(t, w, &resp)
	if tok, _ := resp["token"].(string); tok == "" {
		t.Error("change-password did not return a new token")
	}

	if w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ops", Password: "ops-pass-12345"}); w.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ops", Password: "fresh-pass-123"}); w.Code != http.StatusOK {
		t.Errorf("new password rejected = %d", w.Code)
	}
}

func TestUserManagement(t *testing.T) {
	a := newTestAPI(t)

	if w := a.do(t, http.MethodGet, "/api/users", a.userTok, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-admin list users = %d", w.Code)
	}

	if w := a.do(t, http.MethodPost, "/api/users", a.adminTok, CreateUserRequest{Username: "scout", Password: "tiny"}); w.Code != http.StatusBadRequest {
		t.Errorf("short password create = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/users", a.adminTok, CreateUserRequest{Username: "scout", Password: "scout-pass-123"}); w.Code != http.StatusCreated {
		t.Fatalf("create user = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/users", a.adminTok, CreateUserRequest{Username: "scout", Password: "scout-pass-123"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d", w.Code)
	}

	w := a.do(t, http.MethodGet, "/api/users", a.adminTok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list users = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scout") {
		t.Error("listing missing created user")
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Error("listing leaked password hashes")
	}

	promote := true
	if w := a.do(t, http.MethodPatch, "/api/users/scout", a.adminTok, UpdateUserRequest{IsAdmin: &promote}); w.Code != http.StatusOK {
		t.Fatalf("promote user = %d %s", w.Code, w.Body.String())
	}
	scout, err := a.store.GetUserByUsername(context.Background(), "scout")
	if err != nil {
		t.Fatalf("loading scout: %v", err)
	}
	if !scout.IsAdmin {
		t.Error("patch did not set admin flag")
	}

	if w := a.do(t, http.MethodPost, "/api/users/scout/reset-password", a.adminTok, ResetPasswordRequest{NewPassword: "reset-pass-123"}); w.Code != http.StatusOK {
		t.Fatalf("reset password = %d", w.Code)
	}
	var login LoginResponse
	decode(t, a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "scout", Password: "reset-pass-123"}), &login)
	if !login.PasswordChangeRequired {
		t.Error("reset did not force a password change")
	}

	if w := a.do(t, http.MethodDelete, "/api/users/admin", a.adminTok, nil); w.Code != http.StatusForbidden {
		t.Errorf("self delete = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/api/users/scout", a.adminTok, nil); w.Code != http.StatusOK {
		t.Errorf("delete user = %d", w.Code)
	}
	if w := a.do(t, http.MethodDelete, "/api/users/scout", a.adminTok, nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing user = %d", w.Code)
	}
	if w := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "scout", Password: "reset-pass-123"}); w.Code != http.StatusUnauthorized {
		t.Errorf("deleted user login = %d", w.Code)
	}
}
