package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, fs *fakeStore) (*httptest.Server, *Service) {
	t.Helper()
	svc := newTestService(fs)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server, svc
}

func doJSON(t *testing.T, method, url, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		payload = nil
	}
	return resp.StatusCode, payload
}

func signUpAndVerify(t *testing.T, url, email, password string) {
	t.Helper()
	status, payload := doJSON(t, http.MethodPost, url+"/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": password,
		"name":     "Test User",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup returned %d: %+v", status, payload)
	}
	token, _ := payload["devVerificationToken"].(string)
	if token == "" {
		t.Fatal("expected dev verification token when SMTP is not configured")
	}
	status, payload = doJSON(t, http.MethodPost, url+"/api/auth/verify-email", "", map[string]string{"token": token})
	if status != http.StatusOK {
		t.Fatalf("verify returned %d: %+v", status, payload)
	}
}

func signIn(t *testing.T, url, email, password string) map[string]any {
	t.Helper()
	status, payload := doJSON(t, http.MethodPost, url+"/api/auth/signin", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("signin returned %d: %+v", status, payload)
	}
	return payload
}

func TestSignUpVerifySignInFlow(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())

	signUpAndVerify(t, server.URL, "user@example.com", "password123")
	payload := signIn(t, server.URL, "user@example.com", "password123")

	if payload["accessToken"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("expected tokens in signin response: %+v", payload)
	}
	if payload["email"] != "user@example.com" {
		t.Fatalf("unexpected email %v", payload["email"])
	}
	if payload["isAdmin"] != false {
		t.Fatalf("expected non-admin for outside domain, got %v", payload["isAdmin"])
	}
}

func TestSignInOrgDomainIsAdmin(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())

	signUpAndVerify(t, server.URL, "ops@seomax.com", "password123")
	payload := signIn(t, server.URL, "ops@seomax.com", "password123")
	if payload["isAdmin"] != true {
		t.Fatalf("expected org-domain user to be admin, got %v", payload["isAdmin"])
	}
}

func TestSignInRequiresVerifiedEmail(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())

	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
		"name":     "Test User",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup returned %d: %+v", status, payload)
	}

	status, payload = doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
	})
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified email, got %d: %+v", status, payload)
	}
	if payload["code"] != "EMAIL_NOT_VERIFIED" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")

	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", "", map[string]string{
		"email":    "user@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %+v", status, payload)
	}
	if payload["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestDuplicateSignUpConflicts(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")

	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"email":    "user@example.com",
		"password": "password123",
		"name":     "Test User",
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %+v", status, payload)
	}
	if payload["code"] != "EMAIL_EXISTS" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}

func TestSessionProbeAlwaysOK(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")
	signedIn := signIn(t, server.URL, "user@example.com", "password123")

	status, payload := doJSON(t, http.MethodGet, server.URL+"/api/auth/session", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 without token, got %d", status)
	}
	if payload["session"] != nil {
		t.Fatalf("expected null session, got %+v", payload["session"])
	}

	status, payload = doJSON(t, http.MethodGet, server.URL+"/api/auth/session", "garbage-token", nil)
	if status != http.StatusOK || payload["session"] != nil {
		t.Fatalf("expected 200 null session for bad token, got %d %+v", status, payload)
	}

	token := signedIn["accessToken"].(string)
	status, payload = doJSON(t, http.MethodGet, server.URL+"/api/auth/session", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	session, ok := payload["session"].(map[string]any)
	if !ok {
		t.Fatalf("expected session object, got %+v", payload)
	}
	user, ok := session["user"].(map[string]any)
	if !ok || user["email"] != "user@example.com" {
		t.Fatalf("unexpected session user %+v", session)
	}
}

func TestRefreshEndpointRotatesTokens(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")
	signedIn := signIn(t, server.URL, "user@example.com", "password123")

	refreshToken := signedIn["refreshToken"].(string)
	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": refreshToken,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh returned %d: %+v", status, payload)
	}
	if payload["refreshToken"] == refreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	status, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": refreshToken,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for consumed refresh token, got %d", status)
	}
}

func TestSignOutInvalidatesSession(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")
	signedIn := signIn(t, server.URL, "user@example.com", "password123")
	token := signedIn["accessToken"].(string)

	status, _ := doJSON(t, http.MethodPost, server.URL+"/api/auth/signout", token, map[string]string{
		"refreshToken": signedIn["refreshToken"].(string),
	})
	if status != http.StatusOK {
		t.Fatalf("signout returned %d", status)
	}

	status, payload := doJSON(t, http.MethodGet, server.URL+"/api/auth/session", token, nil)
	if status != http.StatusOK || payload["session"] != nil {
		t.Fatalf("expected null session after signout, got %d %+v", status, payload)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())
	signUpAndVerify(t, server.URL, "user@example.com", "password123")

	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/reset-password/request", "", map[string]string{
		"email": "user@example.com",
	})
	if status != http.StatusOK {
		t.Fatalf("reset request returned %d: %+v", status, payload)
	}
	resetToken, _ := payload["devResetToken"].(string)
	if resetToken == "" {
		t.Fatal("expected dev reset token when SMTP is not configured")
	}

	status, payload = doJSON(t, http.MethodPost, server.URL+"/api/auth/reset-password", "", map[string]string{
		"token":       resetToken,
		"newPassword": "newpassword456",
	})
	if status != http.StatusOK {
		t.Fatalf("reset returned %d: %+v", status, payload)
	}

	signIn(t, server.URL, "user@example.com", "newpassword456")
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore())

	status, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/reset-password/request", "", map[string]string{
		"email": "nobody@example.com",
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 for unknown email, got %d", status)
	}
	if _, ok := payload["devResetToken"]; ok {
		t.Fatal("expected no reset token for unknown email")
	}
}
