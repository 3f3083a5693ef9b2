package model

import "strings"

// Department is the multi-tenancy partition key. Chunks are tagged with
// exactly one department and queries only ever see chunks from their own.
type Department string

const (
	DepartmentGeneral    Department = "General"
	DepartmentIT         Department = "IT"
	DepartmentHR         Department = "HR"
	DepartmentFinance    Department = "Finance"
	DepartmentLegal      Department = "Legal"
	DepartmentOperations Department = "Operations"
)

var departments = map[string]Department{
	"general":    DepartmentGeneral,
	"it":         DepartmentIT,
	"hr":         DepartmentHR,
	"finance":    DepartmentFinance,
	"legal":      DepartmentLegal,
	"operations": DepartmentOperations,
}

// NormalizeDepartment maps a raw tag onto the closed enumeration. Unknown
// tags are never an error: they fold into DepartmentGeneral and the second
// return value reports whether the input was recognized, so callers can log
// a warning instead of silently dropping the tag.
func NormalizeDepartment(raw string) (Department, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DepartmentGeneral, true
	}
	if dep, ok := departments[strings.ToLower(trimmed)]; ok {
		return dep, true
	}
	return DepartmentGeneral, false
}

func (d Department) String() string {
	return string(d)
}
