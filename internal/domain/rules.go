package domain

import (
	"math"
	"strings"
)

// MemberRole resolves the role a user holds on a project. The owner is always a
// manager, even when missing from the member list. RoleNone means no access.
func MemberRole(p Project, userID string) string {
	if userID == "" {
		return RoleNone
	}
	if p.OwnerID == userID {
		return RoleManager
	}
	for _, m := range p.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return RoleNone
}

func IsMember(p Project, userID string) bool {
	return MemberRole(p, userID) != RoleNone
}

func IsManager(p Project, userID string) bool {
	return MemberRole(p, userID) == RoleManager
}

// CanStart reports whether every blocked-by dependency of t is done. statusByID
// maps task ids to their current status; ids absent from the map do not block.
// This is advisory only and is never checked on status updates.
func CanStart(t Task, statusByID map[string]string) bool {
	for _, d := range t.Dependencies {
		if d.Type != DependencyBlockedBy {
			continue
		}
		status, ok := statusByID[d.TaskID]
		if ok && status != StatusDone {
			return false
		}
	}
	return true
}

// HasDependency reports whether t lists taskID as a dependency of any type.
func HasDependency(t Task, taskID string) bool {
	for _, d := range t.Dependencies {
		if d.TaskID == taskID {
			return true
		}
	}
	return false
}

// Progress is the rounded percentage of completed tasks.
func Progress(m ProjectMetadata) int {
	if m.TotalTasks == 0 {
		return 0
	}
	return int(math.Round(float64(m.CompletedTasks) / float64(m.TotalTasks) * 100))
}

// CanAddUsers reports whether count more users fit in the tenant quota.
func (t Tenant) CanAddUsers(count int) bool {
	if t.MaxUsers == UnlimitedUsers {
		return true
	}
	return t.CurrentUsers+count <= t.MaxUsers
}

// SettingsForPlan returns the feature flags a plan tier grants.
func SettingsForPlan(plan string) TenantSettings {
	paid := plan != PlanFree
	return TenantSettings{AllowAIFeatures: paid, AllowRealTimeCollab: paid}
}

// NormalizeTags lowercases, trims and dedupes tags, dropping empty ones.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
