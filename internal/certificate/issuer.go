package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/eventlog"
	"github.com/mind-engage/coursetrack/internal/logger"
)

// idAttempts bounds regeneration after a certificate id collision.
const idAttempts = 3

type Issuer struct {
	store  Store
	events eventlog.Appender
	log    *logger.Logger

	Now   func() time.Time
	NewID func() (string, error)
}

func NewIssuer(store Store, events eventlog.Appender, log *logger.Logger) *Issuer {
	if events == nil {
		events = eventlog.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Issuer{
		store:  store,
		events: events,
		log:    log.With("service", "CertificateIssuer"),
		Now:    time.Now,
		NewID:  NewCertificateID,
	}
}

// IssueIfComplete creates the certificate for a learner and course when
// percent is 100. It returns nil below 100. When a certificate already
// exists, including one inserted by a concurrent caller, that certificate is
// returned and nothing is written.
func (i *Issuer) IssueIfComplete(ctx context.Context, learnerID, courseID string, percent int) (*Certificate, error) {
	if percent < 100 {
		return nil, nil
	}
	if existing, err := i.store.GetByPair(ctx, learnerID, courseID); err == nil {
		return &existing, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := i.Now().UTC()
	for attempt := 0; attempt < idAttempts; attempt++ {
		certID, err := i.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate certificate id: %w", err)
		}
		c := Certificate{
			ID:             uuid.NewString(),
			CertificateID:  certID,
			LearnerID:      learnerID,
			CourseID:       courseID,
			IssueDate:      now,
			CompletionDate: now,
		}
		err = i.store.Insert(ctx, c)
		if err == nil {
			i.log.Info("certificate issued", "learner_id", learnerID, "course_id", courseID, "certificate_id", certID)
			if err := i.events.Append(ctx, eventlog.CertificateIssued, eventlog.Key(learnerID, courseID), c); err != nil {
				i.log.Warn("event append failed", "type", eventlog.CertificateIssued, "error", err)
			}
			return &c, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		// Lost the race for this pair: the winner's certificate stands.
		if existing, gerr := i.store.GetByPair(ctx, learnerID, courseID); gerr == nil {
			i.log.Debug("certificate already issued", "learner_id", learnerID, "course_id", courseID)
			return &existing, nil
		} else if !errors.Is(gerr, apperr.ErrNotFound) {
			return nil, gerr
		}
		i.log.Warn("certificate id collision, regenerating", "certificate_id", certID)
	}
	return nil, apperr.Conflict("could not allocate a unique certificate id")
}
