// Package gate decides whether a user may act on a course's data.
package gate

import (
	"github.com/mind-engage/coursetrack/internal/apperr"
	"github.com/mind-engage/coursetrack/internal/catalog"
	"github.com/mind-engage/coursetrack/internal/rbac"
)

type Relation int

const (
	Enrolled Relation = iota
	Instructor
	AdminOrInstructor
	// Participant is enrolled, instructor or admin; used by boards that
	// instructors and admins read alongside learners.
	Participant
)

func (r Relation) String() string {
	switch r {
	case Enrolled:
		return "enrolled"
	case Instructor:
		return "instructor"
	case AdminOrInstructor:
		return "admin-or-instructor"
	case Participant:
		return "participant"
	}
	return "unknown"
}

// Principal is the caller as established by the auth middleware.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == rbac.RoleAdmin }

// Allowed reports whether p holds rel on course.
func Allowed(p Principal, course catalog.Course, rel Relation) bool {
	if p.UserID == "" {
		return false
	}
	instructor := course.InstructorID == p.UserID
	switch rel {
	case Enrolled:
		return course.IsEnrolled(p.UserID)
	case Instructor:
		return instructor
	case AdminOrInstructor:
		return instructor || p.IsAdmin()
	case Participant:
		return instructor || p.IsAdmin() || course.IsEnrolled(p.UserID)
	}
	return false
}

// Authorize is Allowed with a Forbidden error attached.
func Authorize(p Principal, course catalog.Course, rel Relation) error {
	if Allowed(p, course, rel) {
		return nil
	}
	switch rel {
	case Enrolled:
		return apperr.Forbidden("not enrolled in course %s", course.ID)
	case Instructor:
		return apperr.Forbidden("not the instructor of course %s", course.ID)
	default:
		return apperr.Forbidden("not authorized for course %s", course.ID)
	}
}
