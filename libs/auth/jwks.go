package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrKeyNotFound = errors.New("jwks key not found")

// minRefetch throttles refetches triggered by unknown key ids.
const minRefetch = 30 * time.Second

// JWKSClient serves the RSA signing keys published by the identity provider. Keys are cached
// for ttl; an unknown kid triggers at most one refetch per minRefetch, and a failed refetch
// keeps the last good key set in service.
type JWKSClient struct {
	url    string
	ttl    time.Duration
	client *http.Client
	group  singleflight.Group
	set    atomic.Pointer[keySet]
}

type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewJWKSClient(url string, ttl time.Duration) *JWKSClient {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWKSClient{url: url, ttl: ttl, client: &http.Client{Timeout: 5 * time.Second}}
}

// Get returns the key for kid, fetching the key set when it is stale or missing kid.
func (c *JWKSClient) Get(kid string) (*rsa.PublicKey, error) {
	cur := c.set.Load()
	if cur != nil {
		age := time.Since(cur.fetchedAt)
		key, ok := cur.keys[kid]
		if ok && age < c.ttl {
			return key, nil
		}
		if !ok && age < minRefetch {
			return nil, ErrKeyNotFound
		}
	}

	_, err, _ := c.group.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
		defer cancel()
		next, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.set.Store(next)
		return nil, nil
	})

	latest := c.set.Load()
	if latest != nil {
		if key, ok := latest.keys[kid]; ok {
			return key, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("refresh jwks: %w", err)
	}
	return nil, ErrKeyNotFound
}

func (c *JWKSClient) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	set := &keySet{keys: map[string]*rsa.PublicKey{}, fetchedAt: time.Now()}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := rsaKey(k.N, k.E); err == nil {
			set.keys[k.Kid] = pub
		}
	}
	if len(set.keys) == 0 {
		return nil, errors.New("jwks contains no usable RSA signing keys")
	}
	return set, nil
}

func rsaKey(modulus, exponent string) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil || len(n) == 0 {
		return nil, errors.New("bad modulus")
	}
	e, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("bad exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}
