package domain

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"

	// UnlimitedUsers disables the tenant user quota.
	UnlimitedUsers = -1
)

const (
	RoleManager = "manager"
	RoleMember  = "member"
	RoleNone    = ""
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

const (
	DependencyBlocks    = "blocks"
	DependencyBlockedBy = "blocked-by"
)

var (
	TaskStatuses    = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusCancelled}
	Priorities      = []string{"low", "medium", "high", "urgent"}
	ProjectStatuses = []string{"planning", "active", "on-hold", "completed", "cancelled"}
	UserRoles       = []string{"admin", "manager", "member"}
	DependencyTypes = []string{DependencyBlocks, DependencyBlockedBy}
)

type TenantSettings struct {
	AllowAIFeatures     bool `json:"allow_ai_features"`
	AllowRealTimeCollab bool `json:"allow_real_time_collab"`
}

type Tenant struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Plan         string         `json:"plan" enum:"free,pro,enterprise"`
	IsActive     bool           `json:"is_active"`
	MaxUsers     int            `json:"max_users"`
	CurrentUsers int            `json:"current_users"`
	Settings     TenantSettings `json:"settings"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role" enum:"admin,manager,member"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role" enum:"manager,member"`
	JoinedAt string `json:"joined_at" format:"date-time"`
}

type ProjectSettings struct {
	IsPrivate           bool `json:"is_private"`
	AllowedMemberInvite bool `json:"allowed_member_invite"`
}

// ProjectMetadata holds the denormalized task counters.
type ProjectMetadata struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	OverdueTasks   int     `json:"overdue_tasks"`
	LastActivityAt *string `json:"last_activity_at,omitempty" format:"date-time"`
}

type Project struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status" enum:"planning,active,on-hold,completed,cancelled"`
	Priority    string          `json:"priority" enum:"low,medium,high,urgent"`
	StartDate   *string         `json:"start_date,omitempty" format:"date-time"`
	EndDate     *string         `json:"end_date,omitempty" format:"date-time"`
	OwnerID     string          `json:"owner_id"`
	Members     []ProjectMember `json:"members"`
	Settings    ProjectSettings `json:"settings"`
	Metadata    ProjectMetadata `json:"metadata"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

type Dependency struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type" enum:"blocks,blocked-by"`
}

type AIMetadata struct {
	SuggestedPriority string   `json:"suggested_priority,omitempty"`
	SuggestedDueDate  *string  `json:"suggested_due_date,omitempty" format:"date-time"`
	PriorityScore     *float64 `json:"priority_score,omitempty"`
	ComplexityScore   *float64 `json:"complexity_score,omitempty"`
	Reasoning         string   `json:"reasoning,omitempty"`
	LastAnalyzedAt    string   `json:"last_analyzed_at,omitempty" format:"date-time"`
}

type Task struct {
	ID             string       `json:"id"`
	TenantID       string       `json:"tenant_id"`
	ProjectID      string       `json:"project_id"`
	ParentTaskID   *string      `json:"parent_task_id,omitempty"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Status         string       `json:"status" enum:"todo,in-progress,review,done,cancelled"`
	Priority       string       `json:"priority" enum:"low,medium,high,urgent"`
	DueDate        *string      `json:"due_date,omitempty" format:"date-time"`
	StartDate      *string      `json:"start_date,omitempty" format:"date-time"`
	CompletedAt    *string      `json:"completed_at,omitempty" format:"date-time"`
	EstimatedHours *float64     `json:"estimated_hours,omitempty"`
	ActualHours    float64      `json:"actual_hours"`
	Assignees      []string     `json:"assignees"`
	Tags           []string     `json:"tags"`
	Dependencies   []Dependency `json:"dependencies"`
	AIMetadata     *AIMetadata  `json:"ai_metadata,omitempty"`
	CreatedBy      string       `json:"created_by"`
	CreatedAt      string       `json:"created_at" format:"date-time"`
	UpdatedAt      string       `json:"updated_at" format:"date-time"`
}

// ActivityEntry is one row of a task's append-only audit trail.
type ActivityEntry struct {
	Seq       int64          `json:"seq"`
	TaskID    string         `json:"task_id"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp string         `json:"timestamp" format:"date-time"`
}

type Comment struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type" enum:"task_assigned,task_completed,comment_mention,project_update,deadline_reminder"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Read      bool           `json:"read"`
	ReadAt    *string        `json:"read_at,omitempty" format:"date-time"`
	Data      map[string]any `json:"data,omitempty"`
	Priority  string         `json:"priority" enum:"low,medium,high"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID   string
	TenantID string
}

func Contains(items []string, v string) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}
