// Package profile stores registered users, their teacher links, applications and assignments.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role is the persisted role of a user.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

var (
	// ErrNotFound is returned when a profile does not exist.
	ErrNotFound = errors.New("profile: not found")
	// ErrExists is returned by CreateProfile for an already registered identity.
	ErrExists = errors.New("profile: already registered")
	// ErrUnknownField is returned by UpdateField for keys outside the editable set.
	ErrUnknownField = errors.New("profile: unknown field")
)

// Record is a registered user.
type Record struct {
	TelegramID   int64
	Role         Role
	Name         string
	Surname      string
	PasswordHash string
	City         string
	School       int
	StudentClass string
	Ref          string
}

// FullName joins name and surname.
func (r Record) FullName() string {
	return strings.TrimSpace(r.Name + " " + r.Surname)
}

// CheckPassword compares plain with the stored hash.
func (r Record) CheckPassword(plain string) bool {
	return CheckPassword(r.PasswordHash, plain)
}

// NewProfile carries the registration answers. Password is plain text and is
// hashed by the store.
type NewProfile struct {
	Role         Role
	Name         string
	Surname      string
	Password     string
	City         string
	School       int
	StudentClass string
	Ref          string
}

func (p NewProfile) validate() error {
	if p.Role != RoleStudent && p.Role != RoleTeacher {
		return fmt.Errorf("profile: invalid role %q", p.Role)
	}
	if p.Name == "" || p.Surname == "" || p.Password == "" {
		return errors.New("profile: name, surname and password are required")
	}
	return nil
}

// Criteria filters Search. Zero fields are ignored.
type Criteria struct {
	Role         Role
	City         string
	School       int
	StudentClass string
}

// Assignment is a task a teacher sent to a student.
type Assignment struct {
	ID        int64
	TeacherID int64
	StudentID int64
	Body      string
}

// Editable field keys accepted by UpdateField.
const (
	FieldName         = "name"
	FieldSurname      = "surname"
	FieldPassword     = "password"
	FieldCity         = "city"
	FieldSchool       = "school"
	FieldStudentClass = "student_class"
)

// column maps an editable field to its column and normalizes the value.
func column(key string, value any) (string, any, error) {
	switch key {
	case FieldName, FieldSurname, FieldCity, FieldStudentClass:
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("profile: field %s expects string, got %T", key, value)
		}
		return key, s, nil
	case FieldSchool:
		n, ok := value.(int)
		if !ok {
			return "", nil, fmt.Errorf("profile: field %s expects int, got %T", key, value)
		}
		return key, n, nil
	case FieldPassword:
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("profile: field %s expects string, got %T", key, value)
		}
		hash, err := HashPassword(s)
		if err != nil {
			return "", nil, err
		}
		return "password_hash", hash, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
}

// Store is the storage collaborator used by the dialog layer.
// Implementations are safe for concurrent use.
type Store interface {
	GetProfile(ctx context.Context, id int64) (Record, error)
	CreateProfile(ctx context.Context, id int64, p NewProfile) error
	UpdateField(ctx context.Context, id int64, key string, value any) error
	DeleteProfile(ctx context.Context, id int64) (bool, error)
	Search(ctx context.Context, c Criteria) ([]Record, error)

	// AddApplication records a teacher's request to attach a student.
	// It reports false when the application already exists or the pair is linked.
	AddApplication(ctx context.Context, teacherID, studentID int64) (bool, error)
	// ListApplications returns teachers with pending applications to the student.
	ListApplications(ctx context.Context, studentID int64) ([]Record, error)
	AcceptApplication(ctx context.Context, studentID, teacherID int64) (bool, error)
	RejectApplication(ctx context.Context, studentID, teacherID int64) (bool, error)
	ListStudents(ctx context.Context, teacherID int64) ([]Record, error)
	ListTeachers(ctx context.Context, studentID int64) ([]Record, error)

	AddAssignment(ctx context.Context, a Assignment) (int64, error)
	ListAssignments(ctx context.Context, studentID int64) ([]Assignment, error)
}

// RoleOf returns the stored role for id, RoleGuest when unregistered.
func RoleOf(ctx context.Context, s Store, id int64) (Role, error) {
	rec, err := s.GetProfile(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return RoleGuest, nil
	}
	if err != nil {
		return "", err
	}
	return rec.Role, nil
}

// HashCost is the bcrypt cost used for new password hashes.
var HashCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), HashCost)
	if err != nil {
		return "", fmt.Errorf("profile: hash password: %w", err)
	}
	return string(b), nil
}

// CheckPassword reports whether plain matches hash.
func CheckPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(plain))) == nil
}
