package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskflow/internal/app"
	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/lifecycle"
	"taskflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tf",
	Short: "Taskflow CLI",
	Long: `Taskflow is a multi-tenant project and task tracker.
- Tenant: an organization on a plan (free, pro, enterprise) with a user quota.
- Project: owned by one user, shared with members who are managers or plain members.
- Task: belongs to one project, may have a parent task and blocks/blocked-by dependencies.
- Every task change is written to its activity log and published as an event.
Run 'tf init' once, then 'tf serve' to expose the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (defaults to <workspace>/taskflow.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("tenant", "", "tenant id of the acting user")
	flags.String("as", "", "user id to act as")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "config", "json", "tenant", "as", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(countersCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default taskflow.yml and migrate the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", path)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Println("database ready at", db.Path(workspace))
				return nil
			})
		},
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}

	var id, name, plan string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTenant(ctx, engine.TenantCreateOptions{ID: id, Name: name, Plan: plan})
				if err != nil {
					return err
				}
				return printTenants([]domain.Tenant{t})
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "tenant id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "tenant name")
	create.Flags().StringVar(&plan, "plan", domain.PlanFree, "plan: free, pro or enterprise")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListTenants(ctx)
				if err != nil {
					return err
				}
				return printTenants(items)
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage tenant users"}

	var opts engine.UserCreateOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to the tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TenantID = viper.GetString("tenant")
			if opts.TenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Engine.AddUser(ctx, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	add.Flags().StringVar(&opts.Email, "email", "", "email")
	add.Flags().StringVar(&opts.Name, "name", "", "display name")
	add.Flags().StringVar(&opts.Role, "role", "member", "role: admin, manager or member")

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenant users",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := viper.GetString("tenant")
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListUsers(ctx, tenantID)
				if err != nil {
					return err
				}
				return printUsers(items)
			})
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := viper.GetString("tenant")
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeactivateUser(ctx, tenantID, args[0])
			})
		},
	}

	cmd.AddCommand(add, list, deactivate)
	return cmd
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	var createOpts engine.ProjectCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project owned by the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			createOpts.Actor = actor
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.CreateProject(ctx, createOpts)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	create.Flags().StringVar(&createOpts.ID, "id", "", "project id (generated when empty)")
	create.Flags().StringVar(&createOpts.Name, "name", "", "project name")
	create.Flags().StringVar(&createOpts.Description, "description", "", "description")
	create.Flags().StringVar(&createOpts.Priority, "priority", "", "low, medium, high or urgent")

	var listOpts engine.ProjectListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListProjects(ctx, actor, listOpts)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
	list.Flags().StringVar(&listOpts.Status, "status", "", "status filter")
	list.Flags().StringVar(&listOpts.Search, "search", "", "name search")

	var role string
	addMember := &cobra.Command{
		Use:   "add-member <project-id> <user-id>",
		Short: "Add a member to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.AddMember(ctx, actor, args[0], args[1], role)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	addMember.Flags().StringVar(&role, "role", domain.RoleMember, "manager or member")

	prioritize := &cobra.Command{
		Use:   "prioritize <project-id>",
		Short: "Ask the AI provider to prioritize open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				suggestions, err := a.Engine.PrioritizeTasks(ctx, actor, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(suggestions)
				}
				tw := newTable("Task", "Priority", "Score", "Reasoning")
				for _, s := range suggestions {
					tw.AppendRow(table.Row{s.TaskID, s.SuggestedPriority, fmt.Sprintf("%.2f", s.PriorityScore), s.Reasoning})
				}
				tw.Render()
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, addMember, prioritize)
	return cmd
}

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Manage tasks"}

	var createOpts engine.TaskCreateOptions
	var due string
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			createOpts.Actor = actor
			createOpts.ProjectID = args[0]
			if due != "" {
				createOpts.DueDate = &due
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, createOpts)
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	create.Flags().StringVar(&createOpts.Title, "title", "", "task title")
	create.Flags().StringVar(&createOpts.Description, "description", "", "description")
	create.Flags().StringVar(&createOpts.Priority, "priority", "", "low, medium, high or urgent")
	create.Flags().StringVar(&createOpts.ParentTaskID, "parent", "", "parent task id")
	create.Flags().StringSliceVar(&createOpts.Assignees, "assignee", nil, "assignee user id (repeatable)")
	create.Flags().StringSliceVar(&createOpts.Tags, "tag", nil, "tag (repeatable)")
	create.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC3339)")

	var listOpts engine.TaskListOptions
	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List project tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			listOpts.ProjectID = args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				page, err := a.Engine.ListTasks(ctx, actor, listOpts)
				if err != nil {
					return err
				}
				if err := printTasks(page.Tasks); err != nil {
					return err
				}
				if page.NextCursor != "" && !viper.GetBool("json") {
					fmt.Println("next cursor:", page.NextCursor)
				}
				return nil
			})
		},
	}
	list.Flags().StringVar(&listOpts.Status, "status", "", "status filter")
	list.Flags().StringVar(&listOpts.AssigneeID, "assignee", "", "assignee filter")
	list.Flags().StringVar(&listOpts.Search, "search", "", "title search")
	list.Flags().IntVar(&listOpts.Limit, "limit", 50, "page size")
	list.Flags().StringVar(&listOpts.Cursor, "cursor", "", "page cursor")

	status := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.SetTaskStatus(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}

	var depType string
	depend := &cobra.Command{
		Use:   "depend <task-id> <depends-on-id>",
		Short: "Add a dependency edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.AddDependency(ctx, engine.DependencyOptions{
					Actor: actor, TaskID: args[0], DependsOn: args[1], Type: depType,
				})
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}
	depend.Flags().StringVar(&depType, "type", domain.DependencyBlockedBy, "blocks or blocked-by")

	undepend := &cobra.Command{
		Use:   "undepend <task-id> <depends-on-id>",
		Short: "Remove every dependency edge to a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.RemoveDependency(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printTasks([]domain.Task{t})
			})
		},
	}

	comment := &cobra.Command{
		Use:   "comment <task-id> <text>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.AddComment(ctx, actor, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}

	activity := &cobra.Command{
		Use:   "activity <task-id>",
		Short: "Show a task's activity log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListActivity(ctx, actor, args[0], 0, 200)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Seq", "Time", "User", "Action", "Details")
				for _, it := range items {
					details, _ := json.Marshal(it.Details)
					tw.AppendRow(table.Row{it.Seq, it.Timestamp, it.UserID, it.Action, string(details)})
				}
				tw.Render()
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, status, depend, undepend, comment, activity)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Bearer tokens for the HTTP API"}
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint an HS256 token for --as in --tenant (uses TASKFLOW_JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			token, err := server.SignToken(viper.GetString("jwt_secret"), actor.UserID, actor.TenantID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.AddCommand(issue)
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "Manage API keys of the acting user"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the token is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, token, err := a.Engine.CreateAPIKey(ctx, actor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "token": token})
				}
				fmt.Printf("%s\t%s\n", key.ID, token)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteAPIKey(ctx, actor, args[0])
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notifications", Short: "Read the acting user's notifications"}
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Notify.List(ctx, actor, unread, 50)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Type", "Priority", "Title", "Read")
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Priority, n.Title, n.Read})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")

	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Notify.MarkAllRead(ctx, actor)
				if err != nil {
					return err
				}
				fmt.Println("marked", n, "read")
				return nil
			})
		},
	}

	cmd.AddCommand(list, readAll)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	var n int
	tail := &cobra.Command{
		Use:   "tail <project-id>",
		Short: "Tail a project's events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorFromFlags()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListEvents(ctx, actor, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor")
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.AddCommand(tail)
	return cmd
}

func countersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "counters", Short: "Project aggregate counters"}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Refresh overdue counters of every project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SweepOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Println("updated", n, "projects")
				return nil
			})
		},
	}
	recompute := &cobra.Command{
		Use:   "recompute <project-id>",
		Short: "Recompute one project's counters from its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := viper.GetString("tenant")
			if tenantID == "" {
				return fmt.Errorf("--tenant required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RecomputeCounters(ctx, args[0], tenantID)
			})
		},
	}
	cmd.AddCommand(sweep, recompute)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devHeaders bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, WebSocket hub and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt_secret")
			if secret == "" && !devHeaders {
				return fmt.Errorf("TASKFLOW_JWT_SECRET is required for bearer auth")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			lc := lifecycle.New(15*time.Second, a.Logger.Named("lifecycle"))
			lc.Register("app", func(context.Context) error { return a.Close() })
			if err := a.Start(ctx, lc); err != nil {
				_ = lc.Shutdown(context.Background())
				return err
			}

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				Notify:   a.Notify,
				Hub:      a.Hub,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, AllowDevHeaders: devHeaders},
				Logger:   a.Logger.Named("http"),
			})
			if err != nil {
				_ = lc.Shutdown(context.Background())
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			lc.Register("http", srv.Shutdown)
			lc.Listen(cancel)

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("serving taskflow api", zap.String("addr", addr), zap.String("base_path", basePath))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err = <-errCh:
			}
			if shutdownErr := lc.Shutdown(context.Background()); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&devHeaders, "dev-headers", false, "trust X-User-Id/X-Tenant-Id headers (local development only)")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		RedisURL:   viper.GetString("redis_url"),
		AIAPIKey:   viper.GetString("ai_api_key"),
		LogLevel:   viper.GetString("log-level"),
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	if viper.GetString("log-level") == "" {
		viper.Set("log-level", "warn")
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actorFromFlags() (domain.Actor, error) {
	actor := domain.Actor{UserID: viper.GetString("as"), TenantID: viper.GetString("tenant")}
	if actor.UserID == "" || actor.TenantID == "" {
		return actor, fmt.Errorf("--as and --tenant are required")
	}
	return actor, nil
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printTenants(items []domain.Tenant) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Plan", "Users", "Max", "Active")
	for _, t := range items {
		quota := fmt.Sprint(t.MaxUsers)
		if t.MaxUsers == domain.UnlimitedUsers {
			quota = "unlimited"
		}
		tw.AppendRow(table.Row{t.ID, t.Name, t.Plan, t.CurrentUsers, quota, t.IsActive})
	}
	tw.Render()
	return nil
}

func printUsers(items []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Email", "Name", "Role", "Active")
	for _, u := range items {
		tw.AppendRow(table.Row{u.ID, u.Email, u.Name, u.Role, u.IsActive})
	}
	tw.Render()
	return nil
}

func printProjects(items []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Status", "Owner", "Members", "Tasks", "Done", "Overdue", "Progress")
	for _, p := range items {
		tw.AppendRow(table.Row{
			p.ID, p.Name, p.Status, p.OwnerID, len(p.Members),
			p.Metadata.TotalTasks, p.Metadata.CompletedTasks, p.Metadata.OverdueTasks,
			fmt.Sprintf("%d%%", domain.Progress(p.Metadata)),
		})
	}
	tw.Render()
	return nil
}

func printTasks(items []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Title", "Status", "Priority", "Assignees", "Due", "Deps")
	for _, t := range items {
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, strings.Join(t.Assignees, ","), due, len(t.Dependencies)})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
