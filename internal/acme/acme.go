// Package acme is the ACME Agent: it owns the long-lived account key and
// the issuance/renewal lifecycle, delegating the protocol itself to
// go-acme/lego/v4. Grounded in the prior implementation's
// nginx.LetsEncryptManager, generalized from a single hard-wired
// cloudflare import to a provider registry and from a fixed +90d expiry
// to parsing the issued leaf's NotAfter (falling back to +90d only when
// that fails, per the daemon's Open Question decision).
package acme

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/dns/cloudflare"
	"github.com/go-acme/lego/v4/registration"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
	"github.com/nubictl/nubi/internal/store"
)

// ErrProviderNotImplemented is returned for a provider name the build
// enumerates but has not wired a lego package for yet.
var ErrProviderNotImplemented = fmt.Errorf("dns provider not implemented in this build")

// ProviderFields lists the environment variable names each supported
// provider needs, so an operator UI can prompt for them. Providers beyond
// cloudflare are named but not yet wired — see ErrProviderNotImplemented.
var ProviderFields = map[string][]string{
	"cloudflare":   {"CF_DNS_API_TOKEN"},
	"route53":      {"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_REGION"},
	"digitalocean": {"DO_AUTH_TOKEN"},
	"gcloud":       {"GCE_PROJECT", "GCE_SERVICE_ACCOUNT_FILE"},
	"azure":        {"AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET", "AZURE_SUBSCRIPTION_ID", "AZURE_TENANT_ID"},
}

// DNSProviderConfig names a DNS-01 provider and its credential fields.
type DNSProviderConfig struct {
	Provider string
	Config   map[string]string
}

// user implements lego's registration.User.
type user struct {
	email string
	reg   *registration.Resource
	key   crypto.PrivateKey
}

func (u *user) GetEmail() string                        { return u.email }
func (u *user) GetRegistration() *registration.Resource { return u.reg }
func (u *user) GetPrivateKey() crypto.PrivateKey        { return u.key }

// Agent issues and renews ACME certificates and persists results through
// the State Store's Certificate CRUD.
type Agent struct {
	store   *store.Store
	email   string
	dataDir string
	staging bool
}

// New returns an Agent whose account key lives under dataDir/acme.
func New(st *store.Store, email, dataDir string, staging bool) *Agent {
	return &Agent{store: st, email: email, dataDir: filepath.Join(dataDir, "acme"), staging: staging}
}

func (a *Agent) newClient() (*lego.Client, *user, error) {
	if err := os.MkdirAll(a.dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("ensure acme data dir: %w", err)
	}
	key, err := a.userKey()
	if err != nil {
		return nil, nil, fmt.Errorf("load account key: %w", err)
	}

	u := &user{email: a.email, key: key}
	cfg := lego.NewConfig(u)
	if a.staging {
		cfg.CADirURL = lego.LEDirectoryStaging
	} else {
		cfg.CADirURL = lego.LEDirectoryProduction
	}
	cfg.Certificate.KeyType = certcrypto.EC256

	client, err := lego.NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create acme client: %w", err)
	}
	return client, u, nil
}

func (a *Agent) userKey() (crypto.PrivateKey, error) {
	keyPath := filepath.Join(a.dataDir, "account.key")
	if data, err := os.ReadFile(keyPath); err == nil {
		if key, err := certcrypto.ParsePEMPrivateKey(data); err == nil {
			return key, nil
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	keyBytes := certcrypto.PEMEncode(key)
	if err := os.WriteFile(keyPath, keyBytes, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func dnsProvider(cfg DNSProviderConfig) (challenge.Provider, error) {
	for k, v := range cfg.Config {
		os.Setenv(k, v)
	}

	switch cfg.Provider {
	case "cloudflare":
		return cloudflare.NewDNSProvider()
	case "route53", "digitalocean", "gcloud", "azure":
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrProviderNotImplemented)
	default:
		return nil, fmt.Errorf("unknown dns provider: %s", cfg.Provider)
	}
}

// bundle is the ACME-obtained material plus its derived on-disk paths,
// shared by Issue (new entity) and Renew (update existing entity).
type bundle struct {
	certPath, keyPath, fingerprint string
	expiresAt                      time.Time
}

// obtain drives the DNS-01 challenge and writes the resulting key material
// under dataDir/certs/<certName>, without touching the State Store.
func (a *Agent) obtain(certName string, domains []string, providerCfg DNSProviderConfig) (*bundle, error) {
	client, u, err := a.newClient()
	if err != nil {
		return nil, nerr.Wrap(nerr.AcmeError, "create acme client", err)
	}

	provider, err := dnsProvider(providerCfg)
	if err != nil {
		return nil, nerr.Wrap(nerr.AcmeError, "configure dns provider", err)
	}

	if err := client.Challenge.SetDNS01Provider(provider,
		dns01.AddDNSTimeout(120*time.Second),
		dns01.AddRecursiveNameservers([]string{"8.8.8.8:53", "1.1.1.1:53"}),
	); err != nil {
		return nil, nerr.Wrap(nerr.AcmeError, "set dns01 provider", err)
	}

	if u.reg == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, nerr.Wrap(nerr.AcmeError, "register acme account", err)
		}
		u.reg = reg
	}

	obtained, err := client.Certificate.Obtain(certificate.ObtainRequest{Domains: domains, Bundle: true})
	if err != nil {
		return nil, nerr.Wrap(nerr.AcmeError, "obtain certificate", err)
	}

	certDir := filepath.Join(a.dataDir, "certs", certName)
	if err := os.MkdirAll(certDir, 0o755); err != nil {
		return nil, nerr.Wrap(nerr.Transient, "create certificate directory", err)
	}
	certPath := filepath.Join(certDir, "fullchain.pem")
	keyPath := filepath.Join(certDir, "privkey.pem")
	if err := os.WriteFile(certPath, obtained.Certificate, 0o644); err != nil {
		return nil, nerr.Wrap(nerr.Transient, "write certificate", err)
	}
	if err := os.WriteFile(keyPath, obtained.PrivateKey, 0o600); err != nil {
		return nil, nerr.Wrap(nerr.Transient, "write key", err)
	}

	return &bundle{
		certPath:    certPath,
		keyPath:     keyPath,
		fingerprint: fingerprint(obtained.Certificate),
		expiresAt:   parseExpiry(obtained.Certificate),
	}, nil
}

// Issue obtains a certificate bundle for domains via DNS-01 and creates a
// new Certificate entity in the State Store. certName is used as the
// entity's display name.
func (a *Agent) Issue(ctx context.Context, certName string, domains []string, providerCfg DNSProviderConfig, autoRenew bool) (*model.Certificate, error) {
	b, err := a.obtain(certName, domains, providerCfg)
	if err != nil {
		return nil, err
	}

	return a.store.CreateCertificate(&model.Certificate{
		Name:        certName,
		Domains:     domains,
		CertPath:    b.certPath,
		KeyPath:     b.keyPath,
		Provenance:  model.CertACME,
		ExpiresAt:   b.expiresAt,
		AutoRenew:   autoRenew,
		Fingerprint: b.fingerprint,
	})
}

// Renew re-issues a bundle for an existing certificate's domain set,
// preserving id and host bindings.
func (a *Agent) Renew(ctx context.Context, certID string, providerCfg DNSProviderConfig) (*model.Certificate, error) {
	existing, err := a.store.GetCertificate(certID)
	if err != nil {
		return nil, err
	}
	if existing.Provenance != model.CertACME {
		return nil, nerr.New(nerr.ValidationError, "certificate is not ACME-issued")
	}

	b, err := a.obtain(existing.Name, existing.Domains, providerCfg)
	if err != nil {
		return nil, err
	}

	return a.store.UpdateCertificate(certID, &model.Certificate{
		Name:        existing.Name,
		Domains:     existing.Domains,
		CertPath:    b.certPath,
		KeyPath:     b.keyPath,
		Provenance:  model.CertACME,
		ExpiresAt:   b.expiresAt,
		AutoRenew:   existing.AutoRenew,
		Fingerprint: b.fingerprint,
		TagIDs:      existing.TagIDs,
	})
}

// RenewalCandidates is a read-only pass-through to the State Store's scan
// (spec §4.6's renewal scan, Testable Property 8).
func (a *Agent) RenewalCandidates() []*model.Certificate {
	return a.store.RenewalCandidates()
}

// parseExpiry reads NotAfter from the issued leaf certificate, falling
// back to now+90d (Let's Encrypt's validity window) only if the PEM
// cannot be parsed.
func parseExpiry(certPEM []byte) time.Time {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return time.Now().Add(90 * 24 * time.Hour)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return time.Now().Add(90 * 24 * time.Hour)
	}
	return cert.NotAfter
}

func fingerprint(certPEM []byte) string {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return ""
	}
	sum := sha256.Sum256(block.Bytes)
	return hex.EncodeToString(sum[:])
}
