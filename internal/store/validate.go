package store

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/nubictl/nubi/internal/model"
	"github.com/nubictl/nubi/internal/nerr"
)

var domainRegex = regexp.MustCompile(`^[A-Za-z0-9](-?[A-Za-z0-9])*(\.[A-Za-z0-9](-?[A-Za-z0-9])*)+$`)

func validateDomain(domain string) error {
	if domain == "" {
		return nerr.New(nerr.ValidationError, "domain is required")
	}
	stripped := strings.TrimPrefix(domain, "*.")
	if !domainRegex.MatchString(stripped) {
		return nerr.New(nerr.ValidationError, fmt.Sprintf("invalid domain: %s", domain))
	}
	return nil
}

func validateTarget(target string) error {
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nerr.New(nerr.ValidationError, "target must start with http:// or https://")
	}
	return nil
}

func validateLBMethod(m model.LBMethod) error {
	switch m {
	case model.LBRoundRobin, model.LBLeastConn, model.LBIPHash, "":
		return nil
	default:
		return nerr.New(nerr.ValidationError, fmt.Sprintf("invalid load balancing method: %s", m))
	}
}

func validateBackend(b model.Backend) error {
	host, port, err := net.SplitHostPort(b.Address)
	if err != nil {
		return nerr.New(nerr.ValidationError, fmt.Sprintf("invalid backend address: %s", b.Address))
	}
	if host == "" {
		return nerr.New(nerr.ValidationError, fmt.Sprintf("invalid backend host: %s", b.Address))
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return nerr.New(nerr.ValidationError, fmt.Sprintf("invalid backend port: %s", b.Address))
	}
	return nil
}

// validateHost applies the Create/Update boundary rules from spec §4.4. It
// does not check domain uniqueness or certificate resolution — those need
// the store's locked maps and are checked by the caller.
func validateHost(h *model.ProxyHost) error {
	if err := validateDomain(h.Domain); err != nil {
		return err
	}

	if len(h.Backends) == 0 {
		if err := validateTarget(h.Target); err != nil {
			return err
		}
	} else {
		for _, b := range h.Backends {
			if err := validateBackend(b); err != nil {
				return err
			}
		}
		if err := validateLBMethod(h.LBMethod); err != nil {
			return err
		}
	}

	if h.ForceRedirect && !h.TLSEnabled {
		return nerr.New(nerr.ValidationError, "forceRedirect requires tlsEnabled")
	}
	if h.TLSEnabled && h.CertificateID == "" {
		return nerr.New(nerr.ValidationError, "tlsEnabled requires certificateId")
	}

	return nil
}
