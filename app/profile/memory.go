package profile

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type pair struct{ teacher, student int64 }

// MemoryStore keeps everything in process memory. It backs the "memory"
// database driver and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[int64]Record
	links        map[pair]struct{}
	applications map[pair]int
	assignments  []Assignment
	nextID       int64
	seq          int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]Record),
		links:        make(map[pair]struct{}),
		applications: make(map[pair]int),
	}
}

func (m *MemoryStore) GetProfile(_ context.Context, id int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.users[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) CreateProfile(_ context.Context, id int64, p NewProfile) error {
	if err := p.validate(); err != nil {
		return err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; ok {
		return ErrExists
	}
	m.users[id] = Record{
		TelegramID:   id,
		Role:         p.Role,
		Name:         p.Name,
		Surname:      p.Surname,
		PasswordHash: hash,
		City:         p.City,
		School:       p.School,
		StudentClass: p.StudentClass,
		Ref:          p.Ref,
	}
	return nil
}

func (m *MemoryStore) UpdateField(_ context.Context, id int64, key string, value any) error {
	col, v, err := column(key, value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	switch col {
	case "name":
		rec.Name = v.(string)
	case "surname":
		rec.Surname = v.(string)
	case "city":
		rec.City = v.(string)
	case "student_class":
		rec.StudentClass = v.(string)
	case "school":
		rec.School = v.(int)
	case "password_hash":
		rec.PasswordHash = v.(string)
	}
	m.users[id] = rec
	return nil
}

func (m *MemoryStore) DeleteProfile(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return false, nil
	}
	delete(m.users, id)
	for p := range m.links {
		if p.teacher == id || p.student == id {
			delete(m.links, p)
		}
	}
	for p := range m.applications {
		if p.teacher == id || p.student == id {
			delete(m.applications, p)
		}
	}
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.TeacherID != id && a.StudentID != id {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	return true, nil
}

func (m *MemoryStore) Search(_ context.Context, c Criteria) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.users {
		if c.Role != "" && rec.Role != c.Role {
			continue
		}
		if c.City != "" && !strings.EqualFold(rec.City, c.City) {
			continue
		}
		if c.School != 0 && rec.School != c.School {
			continue
		}
		if c.StudentClass != "" && !strings.EqualFold(rec.StudentClass, c.StudentClass) {
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) AddApplication(_ context.Context, teacherID, studentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireRoles(teacherID, studentID); err != nil {
		return false, err
	}
	p := pair{teacherID, studentID}
	if _, linked := m.links[p]; linked {
		return false, nil
	}
	if _, ok := m.applications[p]; ok {
		return false, nil
	}
	m.seq++
	m.applications[p] = m.seq
	return true, nil
}

func (m *MemoryStore) ListApplications(_ context.Context, studentID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type pending struct {
		rec Record
		seq int
	}
	var list []pending
	for p, seq := range m.applications {
		if p.student != studentID {
			continue
		}
		if rec, ok := m.users[p.teacher]; ok {
			list = append(list, pending{rec, seq})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]Record, 0, len(list))
	for _, p := range list {
		out = append(out, p.rec)
	}
	return out, nil
}

func (m *MemoryStore) AcceptApplication(_ context.Context, studentID, teacherID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pair{teacherID, studentID}
	if _, ok := m.applications[p]; !ok {
		return false, nil
	}
	delete(m.applications, p)
	m.links[p] = struct{}{}
	return true, nil
}

func (m *MemoryStore) RejectApplication(_ context.Context, studentID, teacherID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pair{teacherID, studentID}
	if _, ok := m.applications[p]; !ok {
		return false, nil
	}
	delete(m.applications, p)
	return true, nil
}

func (m *MemoryStore) ListStudents(_ context.Context, teacherID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for p := range m.links {
		if p.teacher == teacherID {
			if rec, ok := m.users[p.student]; ok {
				out = append(out, rec)
			}
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) ListTeachers(_ context.Context, studentID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for p := range m.links {
		if p.student == studentID {
			if rec, ok := m.users[p.teacher]; ok {
				out = append(out, rec)
			}
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) AddAssignment(_ context.Context, a Assignment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireRoles(a.TeacherID, a.StudentID); err != nil {
		return 0, err
	}
	m.nextID++
	a.ID = m.nextID
	m.assignments = append(m.assignments, a)
	return a.ID, nil
}

func (m *MemoryStore) ListAssignments(_ context.Context, studentID int64) ([]Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Assignment
	for i := len(m.assignments) - 1; i >= 0; i-- {
		if a := m.assignments[i]; a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemoryStore) requireRoles(teacherID, studentID int64) error {
	if t, ok := m.users[teacherID]; !ok || t.Role != RoleTeacher {
		return ErrNotFound
	}
	if s, ok := m.users[studentID]; !ok || s.Role != RoleStudent {
		return ErrNotFound
	}
	return nil
}

// sortRecords orders by surname, name, then id, matching SQLStore.
func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Surname != rs[j].Surname {
			return rs[i].Surname < rs[j].Surname
		}
		if rs[i].Name != rs[j].Name {
			return rs[i].Name < rs[j].Name
		}
		return rs[i].TelegramID < rs[j].TelegramID
	})
}
