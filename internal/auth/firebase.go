package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

var (
	ErrUnknownKeyID = errors.New("token signed with unknown key id")
	ErrNoSubject    = errors.New("token has no subject")
)

// FirebaseVerifier verifies Firebase Auth ID tokens: RS256 JWTs signed by
// Google's securetoken service account, issued for one project.
type FirebaseVerifier struct {
	projectID string
	certsURL  string
	client    *http.Client
	now       func() time.Time

	// concurrent refreshes share one download
	group singleflight.Group

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

type FirebaseOption func(*FirebaseVerifier)

// WithHTTPClient replaces the client used to download signing certificates.
func WithHTTPClient(c *http.Client) FirebaseOption {
	return func(f *FirebaseVerifier) { f.client = c }
}

// WithClock overrides the time source for expiry checks and key caching.
func WithClock(now func() time.Time) FirebaseOption {
	return func(f *FirebaseVerifier) { f.now = now }
}

func NewFirebaseVerifier(projectID, certsURL string, opts ...FirebaseOption) *FirebaseVerifier {
	f := &FirebaseVerifier{
		projectID: projectID,
		certsURL:  certsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Verify implements IdentityVerifier.
func (f *FirebaseVerifier) Verify(ctx context.Context, token string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerPrefix+f.projectID),
		jwt.WithAudience(f.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(f.now),
	)

	claims := &jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKeyID
		}
		return f.key(ctx, kid)
	})
	if err != nil {
		return fmt.Errorf("firebase: %w", err)
	}

	if claims.Subject == "" {
		return fmt.Errorf("firebase: %w", ErrNoSubject)
	}
	return nil
}

// key returns the public key for kid. While the certificate set is fresh
// an unknown kid is rejected without touching the network. A stale set is
// downloaded once no matter how many callers are waiting on it.
func (f *FirebaseVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	f.mu.RLock()
	keys, fresh := f.keys, f.now().Before(f.expires)
	f.mu.RUnlock()

	if !fresh {
		// detached so one caller leaving does not fail the others
		v, err, _ := f.group.Do("certs", func() (any, error) {
			// another caller may have refreshed since the snapshot
			f.mu.RLock()
			cached, fresh := f.keys, f.now().Before(f.expires)
			f.mu.RUnlock()
			if fresh {
				return cached, nil
			}
			return f.refresh(context.WithoutCancel(ctx))
		})
		if err != nil {
			return nil, err
		}
		keys = v.(map[string]*rsa.PublicKey)
	}

	k, ok := keys[kid]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return k, nil
}

// refresh downloads the kid -> PEM certificate map and swaps it into the
// cache. No lock is held during the download.
func (f *FirebaseVerifier) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing certs: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("signing certs endpoint returned status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return nil, fmt.Errorf("failed to decode signing certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pemCert := range certs {
		// accepts both CERTIFICATE and PUBLIC KEY blocks
		k, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemCert))
		if err != nil {
			return nil, fmt.Errorf("failed to parse cert %q: %w", kid, err)
		}
		keys[kid] = k
	}

	f.mu.Lock()
	f.keys = keys
	f.expires = f.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	f.mu.Unlock()
	return keys, nil
}

// maxAge reads max-age from a Cache-Control header, or 0 when absent.
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(directive), "=")
		if !found || !strings.EqualFold(name, "max-age") {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}
