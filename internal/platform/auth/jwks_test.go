package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func jwksServer(t *testing.T, keys map[string]*rsa.PublicKey) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := JWKSResponse{}
		for kid, key := range keys {
			resp.Keys = append(resp.Keys, JWKSKey{
				Kty: "RSA",
				Kid: kid,
				N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestJWKSCache_FetchesAndCaches(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	srv := jwksServer(t, map[string]*rsa.PublicKey{"kid-1": &priv.PublicKey})
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)

	key, err := cache.Key("kid-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(priv.PublicKey.N) != 0 {
		t.Error("returned key does not match published key")
	}

	// A second lookup must be served from cache even if the server goes away.
	srv.Close()
	if _, err := cache.Key("kid-1"); err != nil {
		t.Fatalf("expected cached key, got error: %v", err)
	}
}

func TestJWKSCache_RefreshOnMiss(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, 2048)
	priv2, _ := rsa.GenerateKey(rand.Reader, 2048)

	published := map[string]*rsa.PublicKey{"kid-1": &priv1.PublicKey}
	srv := jwksServer(t, published)
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Hour)
	if _, err := cache.Key("kid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Rotate keys upstream; an unknown kid must trigger a refetch.
	published["kid-2"] = &priv2.PublicKey
	if _, err := cache.Key("kid-2"); err != nil {
		t.Fatalf("expected refresh-on-miss to find rotated key: %v", err)
	}
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	srv := jwksServer(t, map[string]*rsa.PublicKey{"kid-1": &priv.PublicKey})
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	if _, err := cache.Key("nope"); err == nil {
		t.Fatal("expected error for unknown kid")
	}
}
