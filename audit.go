package cmdbind

import (
	"context"
	"fmt"
	"time"

	"github.com/nlstn/go-cmdbind/internal/audit"
)

// AuditRecord is one persisted bind attempt: the command, the caller, and
// the authorization outcome.
type AuditRecord = audit.Record

// ErrAuditDisabled is returned by audit queries when EnableAudit was not
// called.
var ErrAuditDisabled = fmt.Errorf("cmdbind: auditing is not enabled")

// RecentAuditRecords returns the most recent bind attempts, newest first.
func (s *Service) RecentAuditRecords(ctx context.Context, limit int) ([]AuditRecord, error) {
	store := s.binder.AuditStore()
	if store == nil {
		return nil, ErrAuditDisabled
	}
	return store.Recent(ctx, limit)
}

// AuditRecordsByCommand returns recent bind attempts for one command name.
func (s *Service) AuditRecordsByCommand(ctx context.Context, commandName string, limit int) ([]AuditRecord, error) {
	store := s.binder.AuditStore()
	if store == nil {
		return nil, ErrAuditDisabled
	}
	return store.ByCommand(ctx, commandName, limit)
}

// DeniedAuditCount returns the number of refused bind attempts since the
// given time.
func (s *Service) DeniedAuditCount(ctx context.Context, since time.Time) (int64, error) {
	store := s.binder.AuditStore()
	if store == nil {
		return 0, ErrAuditDisabled
	}
	return store.DeniedCount(ctx, since)
}
