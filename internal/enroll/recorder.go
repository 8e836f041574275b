package enroll

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// Auditor mirrors enrollment and availability rows to a secondary store.
type Auditor interface {
	RecordEnrollment(ctx context.Context, record portal.EnrollmentRecord) error
	RecordAvailability(ctx context.Context, avail portal.Availability) error
}

// Primary is the store whose errors are reported to callers.
type Primary interface {
	portal.EnrollmentRecorder
	SaveAvailability(ctx context.Context, avail portal.Availability) error
}

// MultiRecorder writes to the primary store and then the optional audit
// mirror. Audit failures are logged and never returned.
type MultiRecorder struct {
	primary Primary
	audit   Auditor
	logger  *zap.Logger
}

// NewMultiRecorder builds a MultiRecorder. audit may be nil.
func NewMultiRecorder(primary Primary, audit Auditor, logger *zap.Logger) *MultiRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiRecorder{primary: primary, audit: audit, logger: logger}
}

// RecordEnrollment stores record in both stores.
func (m *MultiRecorder) RecordEnrollment(ctx context.Context, record portal.EnrollmentRecord) error {
	err := m.primary.RecordEnrollment(ctx, record)
	if m.audit != nil {
		if aerr := m.audit.RecordEnrollment(ctx, record); aerr != nil {
			m.logger.Warn("audit enrollment write failed", zap.String("course_id", record.CourseID), zap.Error(aerr))
		}
	}
	return err
}

// RecordAvailability stores a seat snapshot in both stores.
func (m *MultiRecorder) RecordAvailability(ctx context.Context, avail portal.Availability) error {
	err := m.primary.SaveAvailability(ctx, avail)
	if m.audit != nil {
		if aerr := m.audit.RecordAvailability(ctx, avail); aerr != nil {
			m.logger.Warn("audit availability write failed", zap.String("course_id", avail.CourseID), zap.Error(aerr))
		}
	}
	return err
}
