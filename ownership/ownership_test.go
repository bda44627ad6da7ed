package ownership

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/stretchr/testify/require"
)

type memRelations struct {
	students    []model.Student
	teachers    []model.Teacher
	parents     []model.Parent
	classes     []model.Class
	enrollments []model.Enrollment
	children    []model.ParentChild
	invoices    []model.Invoice

	failWith error
	reads    int
}

func (m *memRelations) StudentByUserID(_ context.Context, userID string) (*model.Student, error) {
	m.reads++
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, s := range m.students {
		if s.UserID == userID {
			return &s, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memRelations) TeacherByUserID(_ context.Context, userID string) (*model.Teacher, error) {
	m.reads++
	for _, t := range m.teachers {
		if t.UserID == userID {
			return &t, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memRelations) ParentByUserID(_ context.Context, userID string) (*model.Parent, error) {
	m.reads++
	for _, p := range m.parents {
		if p.UserID == userID {
			return &p, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *memRelations) ActiveClassIDsForStudents(_ context.Context, studentIDs []string) ([]string, error) {
	var out []string
	for _, e := range m.enrollments {
		if e.Active && slices.Contains(studentIDs, e.StudentID) && !slices.Contains(out, e.ClassID) {
			out = append(out, e.ClassID)
		}
	}
	return out, nil
}

func (m *memRelations) ClassIDsTaughtBy(_ context.Context, teacherID string) ([]string, error) {
	var out []string
	for _, c := range m.classes {
		if c.TeacherID == teacherID {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (m *memRelations) ActiveStudentIDsInClasses(_ context.Context, classIDs []string) ([]string, error) {
	var out []string
	for _, e := range m.enrollments {
		if e.Active && slices.Contains(classIDs, e.ClassID) && !slices.Contains(out, e.StudentID) {
			out = append(out, e.StudentID)
		}
	}
	return out, nil
}

func (m *memRelations) ChildStudentIDs(_ context.Context, parentID string) ([]string, error) {
	var out []string
	for _, pc := range m.children {
		if pc.ParentID == parentID {
			out = append(out, pc.StudentID)
		}
	}
	return out, nil
}

func (m *memRelations) InvoiceStudentID(_ context.Context, invoiceID string) (string, error) {
	for _, inv := range m.invoices {
		if inv.ID == invoiceID {
			return inv.StudentID, nil
		}
	}
	return "", model.ErrNotFound
}

func school() *memRelations {
	return &memRelations{
		students: []model.Student{{ID: "s1", UserID: "u-s1"}, {ID: "s2", UserID: "u-s2"}, {ID: "s3", UserID: "u-s3"}},
		teachers: []model.Teacher{{ID: "t1", UserID: "u-t1"}, {ID: "t2", UserID: "u-t2"}},
		parents:  []model.Parent{{ID: "p1", UserID: "u-p1"}},
		classes:  []model.Class{{ID: "c1", TeacherID: "t1"}, {ID: "c2", TeacherID: "t1"}, {ID: "c3"}},
		enrollments: []model.Enrollment{
			{StudentID: "s1", ClassID: "c1", Active: true},
			{StudentID: "s2", ClassID: "c2", Active: false},
			{StudentID: "s3", ClassID: "c3", Active: true},
		},
		children: []model.ParentChild{{ParentID: "p1", StudentID: "s1"}, {ParentID: "p1", StudentID: "s3"}},
		invoices: []model.Invoice{{ID: "inv1", StudentID: "s1"}, {ID: "inv2", StudentID: "s2"}},
	}
}

func principal(role model.Role, userID string) model.Principal {
	return model.Principal{UserID: userID, Username: userID, Role: role}
}

func TestAdminBypassesEveryCheck(t *testing.T) {
	rel := school()
	r := NewResolver(rel)
	admin := principal(model.RoleAdmin, "u-admin")

	for _, target := range []Target{TargetStudent, TargetClass, TargetInvoice, TargetTeacher, TargetParent} {
		ok, err := r.Authorize(context.Background(), admin, target, "anything")
		require.NoError(t, err)
		require.True(t, ok, target.String())
	}
	require.Zero(t, rel.reads, "admin decisions must not read relations")
}

func TestStudentReachesOwnRecordAndEnrolledClasses(t *testing.T) {
	r := NewResolver(school())
	ctx := context.Background()
	stu := principal(model.RoleStudent, "u-s1")

	cases := []struct {
		target Target
		id     string
		want   bool
	}{
		{TargetStudent, "s1", true},
		{TargetStudent, "s2", false},
		{TargetClass, "c1", true},
		{TargetClass, "c2", false},
		{TargetInvoice, "inv1", true},
		{TargetInvoice, "inv2", false},
		{TargetInvoice, "inv-missing", false},
		{TargetTeacher, "t1", false},
		{TargetParent, "p1", false},
	}
	for _, tc := range cases {
		ok, err := r.Authorize(ctx, stu, tc.target, tc.id)
		require.NoError(t, err)
		require.Equal(t, tc.want, ok, "%s %s", tc.target, tc.id)
	}
}

func TestTeacherScopedToTaughtClassesAndActiveStudents(t *testing.T) {
	r := NewResolver(school())
	ctx := context.Background()
	tch := principal(model.RoleTeacher, "u-t1")

	ok, err := r.Authorize(ctx, tch, TargetClass, "c2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Authorize(ctx, tch, TargetClass, "c3")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Authorize(ctx, tch, TargetStudent, "s1")
	require.NoError(t, err)
	require.True(t, ok)

	// s2 is only inactively enrolled in c2.
	ok, err = r.Authorize(ctx, tch, TargetStudent, "s2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Authorize(ctx, tch, TargetTeacher, "t1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Authorize(ctx, tch, TargetTeacher, "t2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTeacherWithoutClassesIsDeniedEveryClass(t *testing.T) {
	r := NewResolver(school())
	tch := principal(model.RoleTeacher, "u-t2")

	for _, id := range []string{"c1", "c2", "c3"} {
		ok, err := r.Authorize(context.Background(), tch, TargetClass, id)
		require.NoError(t, err)
		require.False(t, ok, id)
	}
}

func TestParentSeesExactlyTheirChildren(t *testing.T) {
	r := NewResolver(school())
	ctx := context.Background()
	par := principal(model.RoleParent, "u-p1")

	for id, want := range map[string]bool{"s1": true, "s3": true, "s2": false, "s9": false} {
		ok, err := r.Authorize(ctx, par, TargetStudent, id)
		require.NoError(t, err)
		require.Equal(t, want, ok, id)
	}

	ok, err := r.Authorize(ctx, par, TargetClass, "c3")
	require.NoError(t, err)
	require.True(t, ok, "class of an enrolled child")

	ok, err = r.Authorize(ctx, par, TargetClass, "c2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Authorize(ctx, par, TargetInvoice, "inv1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Authorize(ctx, par, TargetParent, "p1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMissingLinkSurfacesAsTypedError(t *testing.T) {
	r := NewResolver(school())

	_, err := r.Authorize(context.Background(), principal(model.RoleStudent, "u-orphan"), TargetStudent, "s1")
	require.ErrorIs(t, err, ErrAccessLinkMissing)

	var lm *LinkMissingError
	require.True(t, errors.As(err, &lm))
	require.Equal(t, model.RoleStudent, lm.Role)
	require.Equal(t, "u-orphan", lm.UserID)

	_, err = r.Authorize(context.Background(), principal(model.RoleTeacher, "u-orphan"), TargetTeacher, "t1")
	require.ErrorIs(t, err, ErrAccessLinkMissing)
}

func TestStoreFailurePropagates(t *testing.T) {
	rel := school()
	boom := errors.New("db down")
	rel.failWith = boom

	_, err := NewResolver(rel).Authorize(context.Background(), principal(model.RoleStudent, "u-s1"), TargetStudent, "s1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrAccessLinkMissing)
}

func TestUnknownRoleOrEmptyIDDenied(t *testing.T) {
	r := NewResolver(school())

	ok, err := r.Authorize(context.Background(), principal("janitor", "u-s1"), TargetStudent, "s1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.Authorize(context.Background(), principal(model.RoleStudent, "u-s1"), TargetStudent, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBuildAccessContextIsFresh(t *testing.T) {
	rel := school()
	ctx := context.Background()

	ac, err := BuildAccessContext(ctx, rel, model.RoleTeacher, "u-t1")
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, ac.PermittedClassIDs)
	require.Equal(t, []string{"s1"}, ac.PermittedStudentIDs)

	rel.enrollments[1].Active = true
	ac, err = BuildAccessContext(ctx, rel, model.RoleTeacher, "u-t1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"s1", "s2"}, ac.PermittedStudentIDs)
}
