package dispatch

import (
	"fmt"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
)

// Remediator renders the corrective action for a PermissionDenied result
type Remediator struct {
	cfg config.RemediationConfig
}

// NewRemediator creates a remediator from configuration
func NewRemediator(cfg config.RemediationConfig) *Remediator {
	return &Remediator{cfg: cfg}
}

// For returns the remediation for a denied call to service
func (r *Remediator) For(service string) string {
	project := r.cfg.ProjectID
	if project == "" {
		project = "<PROJECT_ID>"
	}
	account := r.cfg.ServiceAccount
	if account == "" {
		account = "<SERVICE_ACCOUNT>"
	}
	role := r.cfg.RoleFor(service)
	if role == "" {
		role = "<ROLE>"
	}
	tmpl := r.cfg.Template
	if tmpl == "" {
		tmpl = config.DefaultRemediationTemplate
	}
	return fmt.Sprintf(tmpl, project, account, role)
}
