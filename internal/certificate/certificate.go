// Package certificate issues at most one completion certificate per learner
// and course.
package certificate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

type Certificate struct {
	ID             string    `json:"id"`
	CertificateID  string    `json:"certificate_id"`
	LearnerID      string    `json:"learner_id"`
	CourseID       string    `json:"course_id"`
	IssueDate      time.Time `json:"issue_date"`
	CompletionDate time.Time `json:"completion_date"`
}

// Store must enforce uniqueness of (LearnerID, CourseID) and of
// CertificateID; Insert reports either violation as apperr.ErrConflict.
type Store interface {
	Insert(ctx context.Context, c Certificate) error
	GetByPair(ctx context.Context, learnerID, courseID string) (Certificate, error)
	Get(ctx context.Context, id string) (Certificate, error)
	GetByCertificateID(ctx context.Context, certificateID string) (Certificate, error)
	ListByLearner(ctx context.Context, learnerID string) ([]Certificate, error)
}

// NewCertificateID returns CERT- followed by 16 uppercase hex characters.
func NewCertificateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "CERT-" + strings.ToUpper(hex.EncodeToString(b)), nil
}
