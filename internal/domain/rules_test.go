package domain

import "testing"

func TestMemberRoleOwnerIsManager(t *testing.T) {
	p := Project{OwnerID: "owner", Members: []ProjectMember{{UserID: "u1", Role: RoleMember}}}
	if got := MemberRole(p, "owner"); got != RoleManager {
		t.Fatalf("owner role = %q, want manager", got)
	}
	if got := MemberRole(p, "u1"); got != RoleMember {
		t.Fatalf("member role = %q", got)
	}
	if IsMember(p, "stranger") {
		t.Fatalf("stranger should not be a member")
	}
	if IsManager(p, "u1") {
		t.Fatalf("member should not be a manager")
	}
}

func TestCanStart(t *testing.T) {
	task := Task{Dependencies: []Dependency{
		{TaskID: "a", Type: DependencyBlockedBy},
		{TaskID: "b", Type: DependencyBlocks},
	}}
	if CanStart(task, map[string]string{"a": StatusTodo, "b": StatusTodo}) {
		t.Fatalf("expected blocked while a is not done")
	}
	if !CanStart(task, map[string]string{"a": StatusDone, "b": StatusTodo}) {
		t.Fatalf("blocks edges must not gate start")
	}
	if !CanStart(task, map[string]string{}) {
		t.Fatalf("missing dependency should not block")
	}
}

func TestTenantQuota(t *testing.T) {
	tn := Tenant{MaxUsers: 5, CurrentUsers: 5}
	if tn.CanAddUsers(1) {
		t.Fatalf("quota exceeded but allowed")
	}
	tn.MaxUsers = UnlimitedUsers
	if !tn.CanAddUsers(100) {
		t.Fatalf("unlimited tenant refused users")
	}
}

func TestProgressAndTags(t *testing.T) {
	if got := Progress(ProjectMetadata{TotalTasks: 3, CompletedTasks: 2}); got != 67 {
		t.Fatalf("progress = %d", got)
	}
	if got := Progress(ProjectMetadata{}); got != 0 {
		t.Fatalf("empty progress = %d", got)
	}
	tags := NormalizeTags([]string{" Backend", "backend", "", "API "})
	if len(tags) != 2 || tags[0] != "backend" || tags[1] != "api" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestErrorKinds(t *testing.T) {
	err := WrapError(KindValidation, "bad", NotFound("inner"))
	if !IsKind(err, KindValidation) {
		t.Fatalf("expected validation kind")
	}
	if KindOf(nil) != KindInternal {
		t.Fatalf("nil error should map to internal")
	}
}
