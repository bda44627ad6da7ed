package ownership

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/MrEthical07/campusAuth/model"
)

// ErrAccessLinkMissing means the caller's role implies a linked domain row
// (student, teacher, parent) and none exists. It is a data problem, not a
// legitimate denial.
var ErrAccessLinkMissing = errors.New("access link missing")

// LinkMissingError names the missing link.
type LinkMissingError struct {
	Role   model.Role
	UserID string
}

func (e *LinkMissingError) Error() string {
	return fmt.Sprintf("no %s record linked to user %s", e.Role, e.UserID)
}

func (e *LinkMissingError) Unwrap() error { return ErrAccessLinkMissing }

// Target is the kind of record an id refers to.
type Target int

const (
	TargetStudent Target = iota + 1
	TargetClass
	TargetInvoice
	TargetTeacher
	TargetParent
)

func (t Target) String() string {
	switch t {
	case TargetStudent:
		return "student"
	case TargetClass:
		return "class"
	case TargetInvoice:
		return "invoice"
	case TargetTeacher:
		return "teacher"
	case TargetParent:
		return "parent"
	default:
		return "unknown"
	}
}

// Source extracts the target id from a request.
type Source func(r *http.Request) (string, error)

// Check pairs a target kind with where its id is read from.
type Check struct {
	Target Target
	Source Source
}

// Relations is the read side of the school data the resolver consults.
// Single-row lookups return model.ErrNotFound when the row is absent.
type Relations interface {
	StudentByUserID(ctx context.Context, userID string) (*model.Student, error)
	TeacherByUserID(ctx context.Context, userID string) (*model.Teacher, error)
	ParentByUserID(ctx context.Context, userID string) (*model.Parent, error)
	ActiveClassIDsForStudents(ctx context.Context, studentIDs []string) ([]string, error)
	ClassIDsTaughtBy(ctx context.Context, teacherID string) ([]string, error)
	ActiveStudentIDsInClasses(ctx context.Context, classIDs []string) ([]string, error)
	ChildStudentIDs(ctx context.Context, parentID string) ([]string, error)
	InvoiceStudentID(ctx context.Context, invoiceID string) (string, error)
}

// AccessContext is what a principal may reach, materialized for one
// decision. It must not be reused across requests.
type AccessContext struct {
	Role   model.Role
	UserID string

	StudentID string
	TeacherID string
	ParentID  string

	PermittedClassIDs   []string
	PermittedStudentIDs []string
	EnrolledClassIDs    []string
	ChildStudentIDs     []string
}

// BuildAccessContext reads the caller's links for role. Admins and unknown
// roles get an empty context without any reads.
func BuildAccessContext(ctx context.Context, rel Relations, role model.Role, userID string) (*AccessContext, error) {
	ac := &AccessContext{Role: role, UserID: userID}

	switch role {
	case model.RoleStudent:
		s, err := rel.StudentByUserID(ctx, userID)
		if err != nil {
			return nil, linkErr(err, role, userID)
		}
		ac.StudentID = s.ID
		if ac.EnrolledClassIDs, err = rel.ActiveClassIDsForStudents(ctx, []string{s.ID}); err != nil {
			return nil, err
		}

	case model.RoleTeacher:
		t, err := rel.TeacherByUserID(ctx, userID)
		if err != nil {
			return nil, linkErr(err, role, userID)
		}
		ac.TeacherID = t.ID
		if ac.PermittedClassIDs, err = rel.ClassIDsTaughtBy(ctx, t.ID); err != nil {
			return nil, err
		}
		if ac.PermittedStudentIDs, err = rel.ActiveStudentIDsInClasses(ctx, ac.PermittedClassIDs); err != nil {
			return nil, err
		}

	case model.RoleParent:
		p, err := rel.ParentByUserID(ctx, userID)
		if err != nil {
			return nil, linkErr(err, role, userID)
		}
		ac.ParentID = p.ID
		if ac.ChildStudentIDs, err = rel.ChildStudentIDs(ctx, p.ID); err != nil {
			return nil, err
		}
		// A parent reaches the classes any child is actively enrolled in.
		if ac.EnrolledClassIDs, err = rel.ActiveClassIDsForStudents(ctx, ac.ChildStudentIDs); err != nil {
			return nil, err
		}
	}

	return ac, nil
}

func linkErr(err error, role model.Role, userID string) error {
	if errors.Is(err, model.ErrNotFound) {
		return &LinkMissingError{Role: role, UserID: userID}
	}
	return err
}

// CanAccessStudent applies the student rule.
func (ac *AccessContext) CanAccessStudent(studentID string) bool {
	switch ac.Role {
	case model.RoleAdmin:
		return true
	case model.RoleStudent:
		return ac.StudentID == studentID
	case model.RoleParent:
		return slices.Contains(ac.ChildStudentIDs, studentID)
	case model.RoleTeacher:
		return slices.Contains(ac.PermittedStudentIDs, studentID)
	}
	return false
}

// CanAccessClass applies the class rule.
func (ac *AccessContext) CanAccessClass(classID string) bool {
	switch ac.Role {
	case model.RoleAdmin:
		return true
	case model.RoleTeacher:
		return slices.Contains(ac.PermittedClassIDs, classID)
	case model.RoleStudent, model.RoleParent:
		return slices.Contains(ac.EnrolledClassIDs, classID)
	}
	return false
}

// Resolver decides whether a principal may act on a specific record.
type Resolver struct {
	relations Relations
}

func NewResolver(rel Relations) *Resolver {
	return &Resolver{relations: rel}
}

// Authorize returns (false, nil) for a legitimate denial. A *LinkMissingError
// means the caller's own account link is broken; other errors come from the
// relations store.
func (r *Resolver) Authorize(ctx context.Context, p model.Principal, target Target, id string) (bool, error) {
	if p.Role == model.RoleAdmin {
		return true, nil
	}
	if id == "" || p.UserID == "" {
		return false, nil
	}

	switch target {
	case TargetTeacher, TargetParent:
		return r.authorizeSelf(ctx, p, target, id)
	case TargetStudent, TargetClass, TargetInvoice:
	default:
		return false, nil
	}

	ac, err := BuildAccessContext(ctx, r.relations, p.Role, p.UserID)
	if err != nil {
		return false, err
	}

	switch target {
	case TargetStudent:
		return ac.CanAccessStudent(id), nil
	case TargetClass:
		return ac.CanAccessClass(id), nil
	default:
		studentID, err := r.relations.InvoiceStudentID(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return ac.CanAccessStudent(studentID), nil
	}
}

// authorizeSelf lets a teacher or parent reach only their own row.
func (r *Resolver) authorizeSelf(ctx context.Context, p model.Principal, target Target, id string) (bool, error) {
	switch {
	case target == TargetTeacher && p.Role == model.RoleTeacher:
		t, err := r.relations.TeacherByUserID(ctx, p.UserID)
		if err != nil {
			return false, linkErr(err, p.Role, p.UserID)
		}
		return t.ID == id, nil
	case target == TargetParent && p.Role == model.RoleParent:
		par, err := r.relations.ParentByUserID(ctx, p.UserID)
		if err != nil {
			return false, linkErr(err, p.Role, p.UserID)
		}
		return par.ID == id, nil
	}
	return false, nil
}
