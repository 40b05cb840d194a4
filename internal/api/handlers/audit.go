package handlers

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
)

// auditLogger writes administrative audit entries. Failures are logged and
// never fail the request.
type auditLogger struct {
	repo *repository.AuditRepository
}

func (a auditLogger) failure(ctx context.Context, action, username, clientIP, userAgent, reason string) {
	a.write(ctx, &models.AuditLog{
		Action:    action,
		Username:  username,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   false,
		ErrorMsg:  reason,
	})
}

func (a auditLogger) success(ctx context.Context, action, username, clientIP, userAgent string, details interface{}) {
	entry := &models.AuditLog{
		Action:    action,
		Username:  username,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Success:   true,
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			log.WithError(err).Warn("Failed to encode audit details")
		} else {
			entry.Details = string(data)
		}
	}
	a.write(ctx, entry)
}

func (a auditLogger) write(ctx context.Context, entry *models.AuditLog) {
	if a.repo == nil {
		return
	}
	if err := a.repo.Create(ctx, entry); err != nil {
		log.WithError(err).WithField("action", entry.Action).Error("Failed to write audit log")
	}
}
