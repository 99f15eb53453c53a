package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avalia-edu/avalia/internal/model"
	"github.com/avalia-edu/avalia/internal/normalize"
)

// EntityStore reads and creates the schools, classes and students an import refers to.
type EntityStore interface {
	ListSchools(ctx context.Context) ([]model.School, error)
	ListClasses(ctx context.Context, year int) ([]model.Class, error)
	ListStudents(ctx context.Context, year int) ([]model.Student, error)
	EnsureSchool(ctx context.Context, s model.School) (model.School, bool, error)
	EnsureClass(ctx context.Context, c model.Class) (model.Class, bool, error)
	EnsureStudent(ctx context.Context, s model.Student) (model.Student, bool, error)
}

// idSpace makes entity IDs name-based, so two jobs importing the same student converge
// on the same row.
var idSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:avalia:entidades"))

func entityID(kind string, parts ...any) string {
	return uuid.NewSHA1(idSpace, fmt.Append([]byte(kind), parts...)).String()
}

type classKey struct {
	schoolID string
	code     string
}

type studentKey struct {
	schoolID string
	name     string
}

// entityCache is owned by one job. It is filled once from the store when the job
// starts and grows as the job creates entities; it is never shared between jobs.
type entityCache struct {
	store EntityStore
	year  int

	schools  map[string]model.School
	classes  map[classKey]model.Class
	students map[studentKey]model.Student

	// counted holds the IDs already reflected in counters during this run.
	counted  map[string]bool
	counters *model.EntityCounters
}

func loadCache(ctx context.Context, store EntityStore, year int, counters *model.EntityCounters) (*entityCache, error) {
	c := &entityCache{
		store:    store,
		year:     year,
		schools:  make(map[string]model.School),
		classes:  make(map[classKey]model.Class),
		students: make(map[studentKey]model.Student),
		counted:  make(map[string]bool),
		counters: counters,
	}
	schools, err := store.ListSchools(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schools: %w", err)
	}
	for _, s := range schools {
		c.schools[s.NormalizedName] = s
	}
	classes, err := store.ListClasses(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load classes: %w", err)
	}
	for _, cl := range classes {
		c.classes[classKey{cl.SchoolID, cl.Code}] = cl
	}
	students, err := store.ListStudents(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	for _, st := range students {
		c.students[studentKey{st.SchoolID, st.NormalizedName}] = st
	}
	return c, nil
}

// count records an entity once per run, as created or as found.
func (c *entityCache) count(id string, created bool, onCreated, onFound *int) {
	if c.counted[id] {
		return
	}
	c.counted[id] = true
	if created {
		*onCreated++
	} else {
		*onFound++
	}
}

func (c *entityCache) school(ctx context.Context, name string) (model.School, error) {
	norm := normalize.NormalizeName(name)
	if s, ok := c.schools[norm]; ok {
		c.count(s.ID, false, &c.counters.SchoolsCreated, &c.counters.SchoolsFound)
		return s, nil
	}
	s, created, err := c.store.EnsureSchool(ctx, model.School{
		ID:             entityID("escola", norm),
		Name:           name,
		NormalizedName: norm,
	})
	if err != nil {
		return s, err
	}
	c.schools[norm] = s
	c.count(s.ID, created, &c.counters.SchoolsCreated, &c.counters.SchoolsFound)
	return s, nil
}

// class returns the class of a school by code. A blank code yields a zero Class.
func (c *entityCache) class(ctx context.Context, schoolID, code, grade string) (model.Class, error) {
	if code == "" {
		return model.Class{}, nil
	}
	key := classKey{schoolID, code}
	if cl, ok := c.classes[key]; ok {
		c.count(cl.ID, false, &c.counters.ClassesCreated, &c.counters.ClassesFound)
		return cl, nil
	}
	cl, created, err := c.store.EnsureClass(ctx, model.Class{
		ID:       entityID("turma", schoolID, "|", code, "|", c.year),
		SchoolID: schoolID,
		Code:     code,
		Grade:    grade,
		Year:     c.year,
	})
	if err != nil {
		return cl, err
	}
	c.classes[key] = cl
	c.count(cl.ID, created, &c.counters.ClassesCreated, &c.counters.ClassesFound)
	return cl, nil
}

// student resolves a student by normalized name within the school and year, creating it
// when absent.
func (c *entityCache) student(ctx context.Context, schoolID, classID, name, code string) (model.Student, error) {
	norm := normalize.NormalizeName(name)
	key := studentKey{schoolID, norm}
	if st, ok := c.students[key]; ok {
		c.count(st.ID, false, &c.counters.StudentsCreated, &c.counters.StudentsFound)
		return st, nil
	}
	st, created, err := c.store.EnsureStudent(ctx, model.Student{
		ID:             entityID("aluno", schoolID, "|", norm, "|", c.year),
		SchoolID:       schoolID,
		ClassID:        classID,
		Name:           name,
		NormalizedName: norm,
		Code:           code,
		Year:           c.year,
	})
	if err != nil {
		return st, err
	}
	c.students[key] = st
	c.count(st.ID, created, &c.counters.StudentsCreated, &c.counters.StudentsFound)
	return st, nil
}
