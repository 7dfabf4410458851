package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
)

var testSecret = []byte("test-secret")

func TestGenerateAndValidate_RoundTrip(t *testing.T) {
	tok, err := GenerateToken("u1", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	userID, err := GetUserIDFromToken(tok, testSecret)
	if err != nil {
		t.Fatalf("GetUserIDFromToken: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("got user id %q, want %q", userID, "u1")
	}
}

func TestValidate_Expired(t *testing.T) {
	tok, err := GenerateToken("u1", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	_, err = GetUserIDFromToken(tok, testSecret)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestValidate_Corrupted(t *testing.T) {
	_, err := GetUserIDFromToken("not.a.token", testSecret)
	if !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("u1", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	_, err = GetUserIDFromToken(tok, []byte("other-secret"))
	if !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_RejectsUnsignedAlg(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID: "u1",
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	_, err = GetUserIDFromToken(raw, testSecret)
	if !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid for alg=none, got %v", err)
	}
}

func TestValidate_MissingUserID(t *testing.T) {
	empty := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	raw, err := empty.SignedString(testSecret)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, err = GetUserIDFromToken(raw, testSecret)
	if !errors.Is(err, common.ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid for empty subject, got %v", err)
	}
}
