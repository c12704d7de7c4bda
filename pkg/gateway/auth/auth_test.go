package auth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer tok123", "tok123", true},
		{"missing", "", "", false},
		{"wrong scheme", "Basic abc", "", false},
		{"empty token", "Bearer   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := ParseBearer(r)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("ParseBearer = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func signTestToken(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return token
}

func TestVerifyRejectsLocally(t *testing.T) {
	v := NewWorkOSVerifier("sk_test", "client_123")
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{
			name:    "garbage",
			token:   "not-a-token",
			wantErr: "parse access token",
		},
		{
			name: "no subject",
			token: signTestToken(t, jwt.RegisteredClaims{
				Issuer: "https://api.workos.com/user_management/client_123",
			}),
			wantErr: "no subject",
		},
		{
			name: "expired",
			token: signTestToken(t, jwt.RegisteredClaims{
				Subject:   "user_1",
				Issuer:    "https://api.workos.com/user_management/client_123",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}),
			wantErr: "expired",
		},
		{
			name: "foreign issuer",
			token: signTestToken(t, jwt.RegisteredClaims{
				Subject:   "user_1",
				Issuer:    "https://api.workos.com/user_management/client_other",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}),
			wantErr: "issuer mismatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := &Principal{UserID: "user_1", Authenticated: true}
	ctx := WithPrincipal(context.Background(), p)
	got, ok := PrincipalFrom(ctx)
	if !ok || got.UserID != "user_1" {
		t.Fatalf("principal = %+v ok = %v", got, ok)
	}
	if _, ok := PrincipalFrom(context.Background()); ok {
		t.Fatal("empty context must not carry a principal")
	}
}
