package services

import (
	"strings"
	"time"

	"github.com/techagentng/civicpulse/models"
)

const (
	// ConsensusThreshold is the number of independent valid verifications
	// that escalates a report.
	ConsensusThreshold = 3
	// ResolutionGracePeriod is added to the escalation time to get the deadline.
	ResolutionGracePeriod = 3 * 24 * time.Hour

	GeneralDepartment = "BBMP General"
)

type departmentRoute struct {
	keyword    string
	department string
}

// departmentTable is matched case-insensitively against the category, first hit wins.
var departmentTable = []departmentRoute{
	{"road", "BBMP Road Dept"},
	{"pothole", "BBMP Road Dept"},
	{"waste", "BBMP Waste Mgmt"},
	{"garbage", "BBMP Waste Mgmt"},
	{"water", "BWSSB"},
	{"drain", "BWSSB"},
	{"traffic", "Traffic Police"},
}

// AssignDepartment returns the department responsible for a category.
func AssignDepartment(category string) string {
	c := strings.ToLower(category)
	for _, route := range departmentTable {
		if strings.Contains(c, route.keyword) {
			return route.department
		}
	}
	return GeneralDepartment
}

// RouteAndSchedule returns the responsible department and the resolution
// deadline for a report escalated at escalatedAt.
func RouteAndSchedule(category models.Category, escalatedAt time.Time) (string, time.Time) {
	return AssignDepartment(string(category)), escalatedAt.Add(ResolutionGracePeriod)
}
