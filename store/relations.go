package store

import (
	"context"
	"fmt"

	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
)

var _ ownership.Relations = (*Relations)(nil)

// Relations answers the ownership questions the access resolver asks and
// carries the writes used to seed those edges.
type Relations struct {
	db *DB
}

func NewRelations(db *DB) *Relations {
	return &Relations{db: db}
}

func (r *Relations) StudentByUserID(ctx context.Context, userID string) (*model.Student, error) {
	var s model.Student
	if err := r.linkRow(ctx, "students", userID, &s.ID, &s.UserID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Relations) TeacherByUserID(ctx context.Context, userID string) (*model.Teacher, error) {
	var t model.Teacher
	if err := r.linkRow(ctx, "teachers", userID, &t.ID, &t.UserID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Relations) ParentByUserID(ctx context.Context, userID string) (*model.Parent, error) {
	var p model.Parent
	if err := r.linkRow(ctx, "parents", userID, &p.ID, &p.UserID); err != nil {
		return nil, err
	}
	return &p, nil
}

// linkRow reads a (id, user_id) row. table is always a package constant.
func (r *Relations) linkRow(ctx context.Context, table, userID string, id, uid *string) error {
	err := r.db.queryRow(ctx, r.db.sql,
		"SELECT id, user_id FROM "+table+" WHERE user_id = ?", userID,
	).Scan(id, uid)
	if isNoRows(err) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("finding %s row: %w", table, err)
	}
	return nil
}

func (r *Relations) ActiveClassIDsForStudents(ctx context.Context, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	ids, err := r.db.queryStrings(ctx,
		"SELECT DISTINCT class_id FROM enrollments WHERE active = 1 AND student_id IN ("+
			placeholders(len(studentIDs))+") ORDER BY class_id",
		stringArgs(studentIDs)...)
	if err != nil {
		return nil, fmt.Errorf("listing enrolled classes: %w", err)
	}
	return ids, nil
}

func (r *Relations) ClassIDsTaughtBy(ctx context.Context, teacherID string) ([]string, error) {
	ids, err := r.db.queryStrings(ctx,
		"SELECT id FROM classes WHERE teacher_id = ? ORDER BY id", teacherID)
	if err != nil {
		return nil, fmt.Errorf("listing taught classes: %w", err)
	}
	return ids, nil
}

func (r *Relations) ActiveStudentIDsInClasses(ctx context.Context, classIDs []string) ([]string, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	ids, err := r.db.queryStrings(ctx,
		"SELECT DISTINCT student_id FROM enrollments WHERE active = 1 AND class_id IN ("+
			placeholders(len(classIDs))+") ORDER BY student_id",
		stringArgs(classIDs)...)
	if err != nil {
		return nil, fmt.Errorf("listing class students: %w", err)
	}
	return ids, nil
}

func (r *Relations) ChildStudentIDs(ctx context.Context, parentID string) ([]string, error) {
	ids, err := r.db.queryStrings(ctx,
		"SELECT student_id FROM parent_children WHERE parent_id = ? ORDER BY student_id", parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	return ids, nil
}

// InvoiceStudentID returns model.ErrNotFound for unknown invoices.
func (r *Relations) InvoiceStudentID(ctx context.Context, invoiceID string) (string, error) {
	var studentID string
	err := r.db.queryRow(ctx, r.db.sql,
		"SELECT student_id FROM invoices WHERE id = ?", invoiceID,
	).Scan(&studentID)
	if isNoRows(err) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("finding invoice: %w", err)
	}
	return studentID, nil
}

// Seeding writes. These are used by fixtures and the demo server.

func (r *Relations) AddStudent(ctx context.Context, s model.Student) error {
	return r.insert(ctx, "INSERT INTO students (id, user_id) VALUES (?, ?)", s.ID, s.UserID)
}

func (r *Relations) AddTeacher(ctx context.Context, t model.Teacher) error {
	return r.insert(ctx, "INSERT INTO teachers (id, user_id) VALUES (?, ?)", t.ID, t.UserID)
}

func (r *Relations) AddParent(ctx context.Context, p model.Parent) error {
	return r.insert(ctx, "INSERT INTO parents (id, user_id) VALUES (?, ?)", p.ID, p.UserID)
}

// AddClass stores the class. An empty TeacherID leaves it unassigned.
func (r *Relations) AddClass(ctx context.Context, c model.Class) error {
	var teacher any
	if c.TeacherID != "" {
		teacher = c.TeacherID
	}
	return r.insert(ctx, "INSERT INTO classes (id, teacher_id) VALUES (?, ?)", c.ID, teacher)
}

// Enroll upserts the enrollment edge, so it also (de)activates one.
func (r *Relations) Enroll(ctx context.Context, e model.Enrollment) error {
	return r.insert(ctx, `
		INSERT INTO enrollments (student_id, class_id, active) VALUES (?, ?, ?)
		ON CONFLICT (student_id, class_id) DO UPDATE SET active = excluded.active`,
		e.StudentID, e.ClassID, boolInt(e.Active))
}

func (r *Relations) LinkChild(ctx context.Context, pc model.ParentChild) error {
	return r.insert(ctx, "INSERT INTO parent_children (parent_id, student_id) VALUES (?, ?)",
		pc.ParentID, pc.StudentID)
}

func (r *Relations) AddInvoice(ctx context.Context, inv model.Invoice) error {
	return r.insert(ctx, "INSERT INTO invoices (id, student_id) VALUES (?, ?)", inv.ID, inv.StudentID)
}

func (r *Relations) insert(ctx context.Context, query string, args ...any) error {
	if _, err := r.db.exec(ctx, r.db.sql, query, args...); err != nil {
		return fmt.Errorf("seeding relation: %w", err)
	}
	return nil
}
