package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/nubictl/nubi/internal/acme"
	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

func (s *Server) listCertificates(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListCertificates())
}

// uploadCertificate accepts operator-supplied PEM material directly
// (Provenance: uploaded), writing it to disk under the data directory
// rather than delegating to the ACME Agent.
func (s *Server) uploadCertificate(c *gin.Context) {
	var body struct {
		Name       string   `json:"name"`
		Domains    []string `json:"domains"`
		CertPEM    string   `json:"certPem"`
		KeyPEM     string   `json:"keyPem"`
		AutoRenew  bool     `json:"autoRenew"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Name == "" || body.CertPEM == "" || body.KeyPEM == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, certPem and keyPem are required"})
		return
	}

	certDir := filepath.Join(s.cfg.DataDir, "certs", body.Name)
	if err := os.MkdirAll(certDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create certificate directory"})
		return
	}
	certPath := filepath.Join(certDir, "fullchain.pem")
	keyPath := filepath.Join(certDir, "privkey.pem")
	if err := os.WriteFile(certPath, []byte(body.CertPEM), 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write certificate"})
		return
	}
	if err := os.WriteFile(keyPath, []byte(body.KeyPEM), 0o600); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "write key"})
		return
	}

	created, err := s.store.CreateCertificate(&model.Certificate{
		Name:       body.Name,
		Domains:    body.Domains,
		CertPath:   certPath,
		KeyPath:    keyPath,
		Provenance: model.CertUploaded,
		AutoRenew:  body.AutoRenew,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) issueCertificate(c *gin.Context) {
	if s.acme == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ACME issuance is disabled (no account email configured)"})
		return
	}

	var body struct {
		Name      string            `json:"name"`
		Domains   []string          `json:"domains"`
		Provider  string            `json:"provider"`
		Config    map[string]string `json:"config"`
		AutoRenew bool              `json:"autoRenew"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cert, err := s.acme.Issue(c.Request.Context(), body.Name, body.Domains, acme.DNSProviderConfig{Provider: body.Provider, Config: body.Config}, body.AutoRenew)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cert)
}

func (s *Server) renewCertificate(c *gin.Context) {
	if s.acme == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ACME issuance is disabled (no account email configured)"})
		return
	}

	var body struct {
		Provider string            `json:"provider"`
		Config   map[string]string `json:"config"`
	}
	_ = c.ShouldBindJSON(&body)

	cert, err := s.acme.Renew(c.Request.Context(), c.Param("id"), acme.DNSProviderConfig{Provider: body.Provider, Config: body.Config})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cert)
}

func (s *Server) deleteCertificate(c *gin.Context) {
	if err := s.store.DeleteCertificate(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "certificate deleted"})
}

// bulkApplyCertificate binds a certificate to every host named in HostIDs,
// plus every host carrying TagID (if set), the many-to-many cert-to-host
// relation materialized as a field on each affected host (spec §3, Open
// Question 1). Each affected host's fragment is re-rendered and the whole
// batch runs through a single barrier pass.
func (s *Server) bulkApplyCertificate(c *gin.Context) {
	var body struct {
		HostIDs []string `json:"hostIds"`
		TagID   string   `json:"tagId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hostIDs := body.HostIDs
	if body.TagID != "" {
		for _, h := range s.store.ListHosts() {
			for _, tagID := range h.TagIDs {
				if tagID == body.TagID {
					hostIDs = append(hostIDs, h.ID)
					break
				}
			}
		}
	}

	certID := c.Param("id")
	updated, err := s.orch.BulkApplyCertificate(c.Request.Context(), certID, hostIDs)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"updatedHosts": updated})
		return
	}
	if nerr.Is(err, nerr.ReloadFailed) {
		c.JSON(http.StatusOK, gin.H{"updatedHosts": updated, "warning": err.Error()})
		return
	}
	writeError(c, err)
}
