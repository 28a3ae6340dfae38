package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aulaplan/internal/app"
	"aulaplan/internal/config"
	"aulaplan/internal/domain"
	"aulaplan/internal/engine"
	"aulaplan/internal/repo"
	"aulaplan/internal/schedule"
	"aulaplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "aulaplan",
	Short: "Aulaplan CLI",
	Long: `Aulaplan plans classroom projects on a working-day calendar.
Core concepts:
- Workspace: your .aulaplan directory with the database; aulaplan.yml holds schedule defaults, the category catalog and webhooks.
- Project: planteamiento, justificacion, general objective, category and cover media; public projects are visible to everyone.
- Planning: specific objectives with activity rows (description, hour estimate, responsible); saving re-derives activity keys from row positions.
- Cronograma: the computed timeline; hours pack into Sunday-free working days and render as month, day or hour columns.
- Membership: owners invite collaborators; outsiders request to join public projects.
- Submissions: deliverables handed in per activity, reviewed by the owner.
- Event log: diary of changes, view with 'aulaplan log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AULAPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(planningCmd())
	rootCmd.AddCommand(cronogramaCmd())
	rootCmd.AddCommand(invitationCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(collaboratorCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Planteamiento, "planteamiento", "", "problem statement")
	cmd.Flags().StringVar(&opts.Justificacion, "justificacion", "", "justification")
	cmd.Flags().StringVar(&opts.ObjetivoGeneral, "objetivo-general", "", "general objective")
	cmd.Flags().StringVar(&opts.TypeProject, "type", "", "project type")
	cmd.Flags().StringVar(&opts.CategoryID, "category", "", "category id")
	cmd.Flags().BoolVar(&opts.IsPublic, "public", false, "visible to everyone")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				f.MemberID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Category", "Public", "Status"})
				for _, p := range items {
					category := ""
					if p.CategoryID != nil {
						category = *p.CategoryID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, category, p.IsPublic, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only projects the actor belongs to")
	cmd.Flags().StringVar(&f.CategoryID, "category", "", "category filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().BoolVar(&f.PublicOnly, "public", false, "only public projects")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, planteamiento, justificacion, objetivoGeneral, typeProject, category, status string
	var public bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{
				ID:      args[0],
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("planteamiento") {
				opts.Planteamiento = &planteamiento
			}
			if cmd.Flags().Changed("justificacion") {
				opts.Justificacion = &justificacion
			}
			if cmd.Flags().Changed("objetivo-general") {
				opts.ObjetivoGeneral = &objetivoGeneral
			}
			if cmd.Flags().Changed("type") {
				opts.TypeProject = &typeProject
			}
			if cmd.Flags().Changed("category") {
				opts.CategoryID = &category
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("public") {
				opts.IsPublic = &public
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&planteamiento, "planteamiento", "", "problem statement")
	cmd.Flags().StringVar(&justificacion, "justificacion", "", "justification")
	cmd.Flags().StringVar(&objetivoGeneral, "objetivo-general", "", "general objective")
	cmd.Flags().StringVar(&typeProject, "type", "", "project type")
	cmd.Flags().StringVar(&category, "category", "", "category id")
	cmd.Flags().StringVar(&status, "status", "", "status (active, archived)")
	cmd.Flags().BoolVar(&public, "public", false, "visible to everyone")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// planningDoc is the file format for 'planning save' and 'cronograma preview',
// matching the HTTP planning payload.
type planningDoc struct {
	Objetivos []struct {
		ID          string `json:"id,omitempty"`
		Title       string `json:"title"`
		Actividades []struct {
			Descripcion       string `json:"descripcion"`
			HoursPerDay       int    `json:"hoursPerDay"`
			ResponsibleUserID string `json:"responsibleUserId,omitempty"`
		} `json:"actividades"`
	} `json:"objetivos_especificos"`
	FechaInicio    string `json:"fechaInicio,omitempty"`
	FechaFin       string `json:"fechaFin,omitempty"`
	HorasPorDia    int    `json:"horasPorDia,omitempty"`
	TotalHoras     int    `json:"totalHoras,omitempty"`
	View           string `json:"tipoVisualizacion,omitempty"`
	EndDateMode    string `json:"end_date_mode,omitempty"`
	TotalHoursMode string `json:"total_hours_mode,omitempty"`
}

func loadPlanningDoc(path string) (planningDoc, error) {
	var doc planningDoc
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("invalid planning document: %w", err)
	}
	return doc, nil
}

func (d planningDoc) objectiveInputs() []engine.ObjectiveInput {
	res := make([]engine.ObjectiveInput, len(d.Objetivos))
	for i, o := range d.Objetivos {
		in := engine.ObjectiveInput{ID: o.ID, Title: o.Title}
		for _, a := range o.Actividades {
			in.Activities = append(in.Activities, engine.ActivityInput{
				Descripcion:       a.Descripcion,
				Hours:             a.HoursPerDay,
				ResponsibleUserID: a.ResponsibleUserID,
			})
		}
		res[i] = in
	}
	return res
}

func planningCmd() *cobra.Command {
	pl := &cobra.Command{Use: "planning", Short: "Manage the planning document"}
	pl.AddCommand(planningSaveCmd())
	pl.AddCommand(planningShowCmd())
	return pl
}

func planningSaveCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "save <project-id>",
		Short: "Save objectives, activities and schedule from a JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadPlanningDoc(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				planning, err := e.SavePlanning(ctx, engine.PlanningInput{
					ProjectID:      args[0],
					Objectives:     doc.objectiveInputs(),
					FechaInicio:    doc.FechaInicio,
					FechaFin:       doc.FechaFin,
					HorasPorDia:    doc.HorasPorDia,
					TotalHoras:     doc.TotalHoras,
					View:           doc.View,
					EndDateMode:    doc.EndDateMode,
					TotalHoursMode: doc.TotalHoursMode,
					ActorID:        viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(planning)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to planning JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func planningShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show the stored planning document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				planning, err := e.GetPlanning(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(planning)
			})
		},
	}
	return cmd
}

func cronogramaCmd() *cobra.Command {
	var view string
	var previewFile string
	cmd := &cobra.Command{
		Use:   "cronograma [project-id]",
		Short: "Render the computed timeline",
		Long:  "Computes the cronograma for a stored project, or for an unsaved planning JSON with --preview.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var cron schedule.Cronograma
				var sched domain.Schedule
				var err error
				switch {
				case previewFile != "":
					doc, derr := loadPlanningDoc(previewFile)
					if derr != nil {
						return derr
					}
					if view != "" {
						doc.View = view
					}
					cron, sched, err = e.PreviewSchedule(engine.PreviewInput{
						Objectives:     doc.objectiveInputs(),
						FechaInicio:    doc.FechaInicio,
						FechaFin:       doc.FechaFin,
						HorasPorDia:    doc.HorasPorDia,
						TotalHoras:     doc.TotalHoras,
						View:           doc.View,
						EndDateMode:    doc.EndDateMode,
						TotalHoursMode: doc.TotalHoursMode,
					})
				case len(args) == 1:
					cron, sched, err = e.ComputeSchedule(ctx, args[0], view, viper.GetString("actor-id"))
				default:
					return fmt.Errorf("a project id or --preview is required")
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"cronograma": cron, "schedule": sched})
				}
				renderCronograma(cron, sched)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "", "view (meses, dias, horas)")
	cmd.Flags().StringVar(&previewFile, "preview", "", "compute from an unsaved planning JSON")
	return cmd
}

// renderCronograma prints the activity/column grid the way the classroom UI
// shows it: one row per activity, a mark per occupied column.
func renderCronograma(cron schedule.Cronograma, sched domain.Schedule) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	keys := sortedKeys(cron.Hours)
	switch cron.View {
	case schedule.ViewHours:
		tw.AppendHeader(table.Row{"Actividad", "Horas"})
		for _, key := range keys {
			tw.AppendRow(table.Row{key, cron.Hours[key]})
		}
	case schedule.ViewDays:
		header := table.Row{"Actividad"}
		for _, d := range cron.Days {
			header = append(header, d.Format("01-02"))
		}
		tw.AppendHeader(header)
		for _, key := range keys {
			tw.AppendRow(markRow(key, cron.Buckets[key], len(cron.Days)))
		}
	default:
		header := table.Row{"Actividad"}
		for _, w := range cron.Windows {
			header = append(header, w.First.Format("2006-01"))
		}
		tw.AppendHeader(header)
		for _, key := range keys {
			tw.AppendRow(markRow(key, cron.Buckets[key], len(cron.Windows)))
		}
	}
	tw.Render()
	fmt.Printf("%s a %s, %d h/dia, %d h total, %d dias\n",
		sched.FechaInicio, sched.FechaFin, sched.HorasPorDia, sched.TotalHoras, cron.DiasNecesarios)
}

func markRow(key string, buckets []int, columns int) table.Row {
	marks := make([]string, columns)
	for _, idx := range buckets {
		if idx >= 0 && idx < columns {
			marks[idx] = "X"
		}
	}
	row := table.Row{key}
	for _, m := range marks {
		row = append(row, m)
	}
	return row
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func invitationCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invitation", Short: "Manage collaborator invitations"}
	inv.AddCommand(invitationCreateCmd())
	inv.AddCommand(invitationListCmd())
	inv.AddCommand(invitationRespondCmd())
	inv.AddCommand(invitationRevokeCmd())
	return inv
}

func invitationCreateCmd() *cobra.Command {
	var invitee, message string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Invite a collaborator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.Invite(ctx, args[0], viper.GetString("actor-id"), invitee, message)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&invitee, "invitee", "", "invitee actor id")
	cmd.Flags().StringVar(&message, "message", "", "invitation message")
	_ = cmd.MarkFlagRequired("invitee")
	return cmd
}

func invitationListCmd() *cobra.Command {
	var f repo.InvitationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInvitations(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.InviteeID, "invitee", "", "invitee filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func invitationRespondCmd() *cobra.Command {
	var accept, decline bool
	cmd := &cobra.Command{
		Use:   "respond <invitation-id>",
		Short: "Accept or decline an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if accept == decline {
				return fmt.Errorf("exactly one of --accept or --decline is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.RespondInvitation(ctx, args[0], viper.GetString("actor-id"), accept)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "accept the invitation")
	cmd.Flags().BoolVar(&decline, "decline", false, "decline the invitation")
	return cmd
}

func invitationRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <invitation-id>",
		Short: "Revoke a pending invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				inv, err := e.RevokeInvitation(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	return cmd
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage participation requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestResolveCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Request to join a public project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.RequestParticipation(ctx, args[0], viper.GetString("actor-id"), message)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "request message")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List participation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListParticipationRequests(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func requestResolveCmd() *cobra.Command {
	var approve, reject bool
	cmd := &cobra.Command{
		Use:   "resolve <request-id>",
		Short: "Approve or reject a participation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := e.ResolveRequest(ctx, args[0], viper.GetString("actor-id"), approve)
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the request")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the request")
	return cmd
}

func collaboratorCmd() *cobra.Command {
	col := &cobra.Command{Use: "collaborator", Short: "Manage collaborators"}
	col.AddCommand(collaboratorListCmd())
	col.AddCommand(collaboratorRemoveCmd())
	return col
}

func collaboratorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List project collaborators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCollaborators(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func collaboratorRemoveCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "remove <project-id>",
		Short: "Remove a collaborator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveCollaborator(ctx, args[0], target, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "collaborator actor id")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{Use: "submission", Short: "Manage deliverable submissions"}
	sub.AddCommand(submissionCreateCmd())
	sub.AddCommand(submissionListCmd())
	sub.AddCommand(submissionReviewCmd())
	sub.AddCommand(submissionResubmitCmd())
	return sub
}

func submissionCreateCmd() *cobra.Command {
	var activityKey, comment, fileKey string
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Submit a deliverable for an activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SubmitDeliverable(ctx, engine.SubmissionCreateOptions{
					ProjectID:   args[0],
					ActivityKey: activityKey,
					AuthorID:    viper.GetString("actor-id"),
					Comment:     comment,
					FileKey:     fileKey,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&activityKey, "activity", "", "activity key")
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	cmd.Flags().StringVar(&fileKey, "file-key", "", "uploaded file key")
	_ = cmd.MarkFlagRequired("activity")
	return cmd
}

func submissionListCmd() *cobra.Command {
	var f repo.SubmissionFilters
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List submissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ProjectID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSubmissions(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.ActivityKey, "activity", "", "activity key filter")
	cmd.Flags().StringVar(&f.AuthorID, "author", "", "author filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func submissionReviewCmd() *cobra.Command {
	var approve, reject bool
	var note string
	cmd := &cobra.Command{
		Use:   "review <submission-id>",
		Short: "Approve or reject a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ReviewSubmission(ctx, args[0], viper.GetString("actor-id"), approve, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "approve the submission")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the submission")
	cmd.Flags().StringVar(&note, "note", "", "review note")
	return cmd
}

func submissionResubmitCmd() *cobra.Command {
	var comment, fileKey string
	cmd := &cobra.Command{
		Use:   "resubmit <submission-id>",
		Short: "Resubmit a rejected deliverable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ResubmitDeliverable(ctx, args[0], viper.GetString("actor-id"), comment, fileKey)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	cmd.Flags().StringVar(&fileKey, "file-key", "", "uploaded file key")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the workspace rulebook (aulaplan.yml): schedule defaults, the category catalog, allowed submission kinds and webhooks.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate aulaplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var workspaceID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default aulaplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(workspaceID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceID, "id", "aulaplan", "workspace id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: project changes, planning saves, invitations, submissions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var project, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, project, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&project, "project", "", "project filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				raw := uuid.NewString() + uuid.NewString()
				now := time.Now().UTC().Format(time.RFC3339)
				actorID := viper.GetString("actor-id")
				tx, err := e.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
					return err
				}
				if err := e.Repo.InsertAPIKey(ctx, tx, domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: now,
				}); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				// raw key is shown once; only its hash is stored
				return printJSONOrTable(map[string]string{"api_key": raw})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the actor's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("AULAPLAN_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyHeader,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("AULAPLAN_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(ws.Engine)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Aulaplan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyHeader, "allow-actor-header", false, "trust X-Actor-Id without a token (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ws, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
