package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskflow/internal/domain"
	"taskflow/internal/engine"
)

type taskPath struct {
	TaskID string `path:"task_id"`
}

var taskErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Actor:          actor,
			ProjectID:      input.ProjectID,
			ParentTaskID:   b.ParentTaskID,
			Title:          b.Title,
			Description:    b.Description,
			Status:         b.Status,
			Priority:       b.Priority,
			DueDate:        b.DueDate,
			StartDate:      b.StartDate,
			EstimatedHours: b.EstimatedHours,
			Assignees:      b.Assignees,
			Tags:           b.Tags,
			Dependencies:   b.Dependencies,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List project tasks, newest first",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		Status       string `query:"status"`
		AssigneeID   string `query:"assignee"`
		ParentTaskID string `query:"parent_task_id"`
		Search       string `query:"search"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body engine.TaskPage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		page, err := e.ListTasks(ctx, actor, engine.TaskListOptions{
			ProjectID:    input.ProjectID,
			Status:       input.Status,
			AssigneeID:   input.AssigneeID,
			ParentTaskID: input.ParentTaskID,
			Search:       input.Search,
			Limit:        input.Limit,
			Cursor:       input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.TaskPage `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			Actor:          actor,
			ID:             input.TaskID,
			Title:          b.Title,
			Description:    b.Description,
			Status:         b.Status,
			Priority:       b.Priority,
			DueDate:        b.DueDate,
			StartDate:      b.StartDate,
			EstimatedHours: b.EstimatedHours,
			ActualHours:    b.ActualHours,
			Assignees:      b.Assignees,
			Tags:           b.Tags,
			ParentTaskID:   b.ParentTaskID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Set task status",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string           `path:"task_id"`
		Body   SetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStatus(ctx, actor, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, actor, input.TaskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/subtasks",
		Summary:     "List direct subtasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSubtasks(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-activity",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/activity",
		Summary:     "Task audit trail in append order",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		After  int64  `query:"after"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body ActivityPage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListActivity(ctx, actor, input.TaskID, input.After, limit)
		if err != nil {
			return nil, handleError(err)
		}
		page := ActivityPage{Items: nonNilSlice(items)}
		if len(items) == limit {
			next := items[len(items)-1].Seq
			page.NextCursor = &next
		}
		return &struct {
			Body ActivityPage `json:"body"`
		}{Body: page}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-dependency",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/dependencies",
		Summary:     "Add a dependency edge",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string               `path:"task_id"`
		Body   AddDependencyRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddDependency(ctx, engine.DependencyOptions{
			Actor:     actor,
			TaskID:    input.TaskID,
			DependsOn: input.Body.TaskID,
			Type:      input.Body.Type,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-dependency",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/dependencies/{depends_on}",
		Summary:     "Remove every edge to a task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		TaskID    string `path:"task_id"`
		DependsOn string `path:"depends_on"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveDependency(ctx, actor, input.TaskID, input.DependsOn)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "can-start",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/can-start",
		Summary:     "Whether every blocking dependency is done",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body CanStartResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ok, err := e.CanStart(ctx, actor, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CanStartResponse `json:"body"`
		}{Body: CanStartResponse{TaskID: input.TaskID, CanStart: ok}}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/comments",
		Summary:       "Comment on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   AddCommentRequest `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, actor, input.TaskID, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/comments",
		Summary:     "List comments in append order",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
		After  int64  `query:"after"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body CommentPage `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListComments(ctx, actor, input.TaskID, input.After, limit)
		if err != nil {
			return nil, handleError(err)
		}
		page := CommentPage{Items: nonNilSlice(items)}
		if len(items) == limit {
			next := items[len(items)-1].Seq
			page.NextCursor = &next
		}
		return &struct {
			Body CommentPage `json:"body"`
		}{Body: page}, nil
	})
}
