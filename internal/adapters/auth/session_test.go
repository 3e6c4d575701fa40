package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"friendly_eats/internal/adapters/auth"
)

func TestIssuer_IssueVerify(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	tok, exp, err := iss.Issue(auth.User{ID: "u1", Name: "Ann"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	u, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u != (auth.User{ID: "u1", Name: "Ann"}) {
		t.Fatalf("user: %+v", u)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	other, _, _ := auth.NewIssuer("other", time.Hour).Issue(auth.User{ID: "u1"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{"wrong key": other, "garbage": "a.b.c", "alg none": unsigned} {
		if _, err := iss.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
			t.Fatalf("%s: want ErrInvalidToken, got %v", name, err)
		}
	}

	if _, _, err := iss.Issue(auth.User{}); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("empty user issued: %v", err)
	}
}

func TestIssuer_RejectsExpired(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Second)
	tok, _, _ := iss.Issue(auth.User{ID: "u1"})
	later := iss.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	if _, err := later.Verify(tok); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	tok, _, _ := iss.Issue(auth.User{ID: "u1", Name: "Ann"})

	var got auth.User
	var signedIn bool
	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, signedIn = auth.FromContext(r.Context())
	}))

	cases := []struct {
		name string
		set  func(r *http.Request)
		want bool
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tok}) }, true},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, true},
		{"anonymous", func(r *http.Request) {}, false},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, false},
	}
	for _, c := range cases {
		got, signedIn = auth.User{}, false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c.set(req)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if signedIn != c.want {
			t.Fatalf("%s: signed in = %v", c.name, signedIn)
		}
		if c.want && got.ID != "u1" {
			t.Fatalf("%s: user %+v", c.name, got)
		}
	}
}

func TestMiddleware_FillsUserSlot(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	tok, _, _ := iss.Issue(auth.User{ID: "u2", Name: "Bo"})
	h := iss.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	var slot auth.User
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req = req.WithContext(auth.WithUserSlot(req.Context(), &slot))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if slot.ID != "u2" || slot.Name != "Bo" {
		t.Fatalf("slot = %+v", slot)
	}
}
