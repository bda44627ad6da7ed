package campusAuth

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
)

// seedSchool builds one teacher with class c1, two students (s1 in c1, s2
// in c2), a parent of s1 and an invoice per student. Teacher t2 teaches
// nothing and user u-orphan is a student without a student row.
func seedSchool(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	rel := env.relations

	env.seedUser(t, "u-adm", "root", model.RoleAdmin)
	env.seedUser(t, "u-t1", "tess", model.RoleTeacher)
	env.seedUser(t, "u-t2", "tom", model.RoleTeacher)
	env.seedUser(t, "u-s1", "sam", model.RoleStudent)
	env.seedUser(t, "u-s2", "sue", model.RoleStudent)
	env.seedUser(t, "u-p1", "pat", model.RoleParent)
	env.seedUser(t, "u-orphan", "olly", model.RoleStudent)

	steps := []error{
		rel.AddTeacher(ctx, model.Teacher{ID: "t1", UserID: "u-t1"}),
		rel.AddTeacher(ctx, model.Teacher{ID: "t2", UserID: "u-t2"}),
		rel.AddStudent(ctx, model.Student{ID: "s1", UserID: "u-s1"}),
		rel.AddStudent(ctx, model.Student{ID: "s2", UserID: "u-s2"}),
		rel.AddParent(ctx, model.Parent{ID: "p1", UserID: "u-p1"}),
		rel.AddClass(ctx, model.Class{ID: "c1", TeacherID: "t1"}),
		rel.AddClass(ctx, model.Class{ID: "c2"}),
		rel.Enroll(ctx, model.Enrollment{StudentID: "s1", ClassID: "c1", Active: true}),
		rel.Enroll(ctx, model.Enrollment{StudentID: "s2", ClassID: "c2", Active: true}),
		rel.LinkChild(ctx, model.ParentChild{ParentID: "p1", StudentID: "s1"}),
		rel.AddInvoice(ctx, model.Invoice{ID: "inv1", StudentID: "s1"}),
		rel.AddInvoice(ctx, model.Invoice{ID: "inv2", StudentID: "s2"}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("seed step %d: %v", i, err)
		}
	}
}

func principal(id, username string, role model.Role) model.Principal {
	return model.Principal{UserID: id, Username: username, Role: role}
}

func TestAuthorizeOwnership(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedSchool(t, env)
	ctx := context.Background()

	admin := principal("u-adm", "root", model.RoleAdmin)
	teacher := principal("u-t1", "tess", model.RoleTeacher)
	idle := principal("u-t2", "tom", model.RoleTeacher)
	student := principal("u-s1", "sam", model.RoleStudent)
	parent := principal("u-p1", "pat", model.RoleParent)

	tests := []struct {
		name   string
		p      model.Principal
		perm   string
		target ownership.Target
		id     string
		allow  bool
	}{
		{"admin any student", admin, "students.read", ownership.TargetStudent, "s2", true},
		{"admin unknown id", admin, "", ownership.TargetInvoice, "nope", true},
		{"teacher own pupil", teacher, "students.read", ownership.TargetStudent, "s1", true},
		{"teacher other pupil", teacher, "students.read", ownership.TargetStudent, "s2", false},
		{"teacher own class", teacher, "classes.read", ownership.TargetClass, "c1", true},
		{"teacher other class", teacher, "classes.read", ownership.TargetClass, "c2", false},
		{"teacher own row", teacher, "", ownership.TargetTeacher, "t1", true},
		{"teacher other row", teacher, "", ownership.TargetTeacher, "t2", false},
		{"idle teacher sees no students", idle, "students.read", ownership.TargetStudent, "s1", false},
		{"idle teacher sees no classes", idle, "classes.read", ownership.TargetClass, "c1", false},
		{"student self", student, "students.read", ownership.TargetStudent, "s1", true},
		{"student peer", student, "students.read", ownership.TargetStudent, "s2", false},
		{"student enrolled class", student, "classes.read", ownership.TargetClass, "c1", true},
		{"student foreign class", student, "classes.read", ownership.TargetClass, "c2", false},
		{"parent child", parent, "students.read", ownership.TargetStudent, "s1", true},
		{"parent other child", parent, "students.read", ownership.TargetStudent, "s2", false},
		{"parent child class", parent, "classes.read", ownership.TargetClass, "c1", true},
		{"parent child invoice", parent, "invoices.read", ownership.TargetInvoice, "inv1", true},
		{"parent foreign invoice", parent, "invoices.read", ownership.TargetInvoice, "inv2", false},
		{"parent unknown invoice", parent, "invoices.read", ownership.TargetInvoice, "inv9", false},
		{"parent own row", parent, "", ownership.TargetParent, "p1", true},
		{"student invoice lacks permission", student, "invoices.read", ownership.TargetInvoice, "inv1", false},
		{"empty id", student, "students.read", ownership.TargetStudent, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := env.engine.Authorize(ctx, tc.p, tc.perm, ownership.Check{Target: tc.target}, tc.id)
			if tc.allow && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tc.allow && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}

	if env.engine.MetricsSnapshot().Counters[MetricAccessDenied] == 0 {
		t.Fatalf("expected denials to be counted")
	}
	if !hasEvent(env.drainEvents(), auditEventAccessDenied) {
		t.Fatalf("expected access_denied audit event")
	}
}

func TestAuthorizeInactiveEnrollment(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedSchool(t, env)
	ctx := context.Background()

	if err := env.relations.Enroll(ctx, model.Enrollment{StudentID: "s1", ClassID: "c1", Active: false}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	teacher := principal("u-t1", "tess", model.RoleTeacher)
	student := principal("u-s1", "sam", model.RoleStudent)
	if err := env.engine.Authorize(ctx, teacher, "", ownership.Check{Target: ownership.TargetStudent}, "s1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("inactive enrollment must not grant teacher access, got %v", err)
	}
	if err := env.engine.Authorize(ctx, student, "", ownership.Check{Target: ownership.TargetClass}, "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("inactive enrollment must not grant class access, got %v", err)
	}
}

func TestAuthorizeLinkMissing(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedSchool(t, env)

	orphan := principal("u-orphan", "olly", model.RoleStudent)
	err := env.engine.Authorize(context.Background(), orphan, "students.read", ownership.Check{Target: ownership.TargetStudent}, "s1")

	var linkErr *LinkMissingError
	if !errors.As(err, &linkErr) || !errors.Is(err, ErrAccessLinkMissing) {
		t.Fatalf("expected LinkMissingError, got %v", err)
	}
	if linkErr.Role != model.RoleStudent || linkErr.UserID != "u-orphan" {
		t.Fatalf("unexpected link error %+v", linkErr)
	}
	if errors.Is(err, ErrForbidden) || KindOf(err) != KindAuthorization {
		t.Fatalf("link missing is distinct from a denial, got kind %s", KindOf(err))
	}
}

func TestHasPermission(t *testing.T) {
	env := newTestEnv(t, testConfig())

	admin := principal("u-adm", "root", model.RoleAdmin)
	student := principal("u-s1", "sam", model.RoleStudent)
	if !env.engine.HasPermission(admin, "invoices.read") {
		t.Fatalf("admin must hold every permission")
	}
	if env.engine.HasPermission(student, "invoices.read") {
		t.Fatalf("student must not read invoices")
	}
	if env.engine.HasPermission(student, "unknown.perm") {
		t.Fatalf("unknown permissions are never granted")
	}
}

func TestAccessContext(t *testing.T) {
	env := newTestEnv(t, testConfig())
	seedSchool(t, env)
	ctx := context.Background()

	ac, err := env.engine.AccessContext(ctx, principal("u-t1", "tess", model.RoleTeacher))
	if err != nil {
		t.Fatalf("teacher context: %v", err)
	}
	if ac.TeacherID != "t1" || !slices.Equal(ac.PermittedClassIDs, []string{"c1"}) || !slices.Equal(ac.PermittedStudentIDs, []string{"s1"}) {
		t.Fatalf("unexpected teacher context %+v", ac)
	}

	ac, err = env.engine.AccessContext(ctx, principal("u-p1", "pat", model.RoleParent))
	if err != nil {
		t.Fatalf("parent context: %v", err)
	}
	if ac.ParentID != "p1" || !slices.Equal(ac.ChildStudentIDs, []string{"s1"}) || !slices.Equal(ac.EnrolledClassIDs, []string{"c1"}) {
		t.Fatalf("unexpected parent context %+v", ac)
	}

	ac, err = env.engine.AccessContext(ctx, principal("u-t2", "tom", model.RoleTeacher))
	if err != nil {
		t.Fatalf("idle teacher context: %v", err)
	}
	if len(ac.PermittedClassIDs) != 0 || len(ac.PermittedStudentIDs) != 0 {
		t.Fatalf("teacher without classes reaches nothing, got %+v", ac)
	}

	if _, err := env.engine.AccessContext(ctx, principal("u-orphan", "olly", model.RoleStudent)); !errors.Is(err, ErrAccessLinkMissing) {
		t.Fatalf("expected link missing, got %v", err)
	}
}
