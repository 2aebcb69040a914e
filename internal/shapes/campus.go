package shapes

import "github.com/refract-io/refract/handle"

// Address locates a building.
type Address struct {
	Street string
	City   string
}

// University is a school a student can enroll at.
type University struct {
	Name     string
	Location Address
}

// Mentor advises students.
type Mentor struct {
	Name string
}

// Transcript accumulates grades.
type Transcript struct {
	Grades []float64
}

// GPA returns the mean grade, or zero when no grades are recorded.
func (t *Transcript) GPA() float64 {
	if len(t.Grades) == 0 {
		return 0
	}
	var sum float64
	for _, g := range t.Grades {
		sum += g
	}
	return sum / float64(len(t.Grades))
}

// Student is enrolled at a university and may have a mentor. The
// transcript is shared with the registrar, so it crosses the boundary
// as a shared handle rather than by value.
type Student struct {
	Name     string
	Age      int64
	School   University
	Advisor  *Mentor
	Record   handle.Shared[Transcript]
	Awards   []string
	OnEnroll func(school string)
}

// NewStudent returns an unenrolled student.
func NewStudent(name string, age int64) Student {
	return Student{Name: name, Age: age}
}

// Enroll moves the student to u and fires the enrollment hook.
func (s *Student) Enroll(u University) {
	s.School = u
	if s.OnEnroll != nil {
		s.OnEnroll(u.Name)
	}
}

// HasAdvisor reports whether a mentor is assigned.
func (s *Student) HasAdvisor() bool { return s.Advisor != nil }
