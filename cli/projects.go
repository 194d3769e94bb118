package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
	"github.com/randalmurphal/autodev/workspace"
)

func (a *App) projectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Manage projects and the current project selection",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects; the current one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ws.Refresh(cmd.Context()); err != nil {
				a.toast.Error(workspace.LoadFailedMessage, "")
				return err
			}
			projects := a.ws.Projects()
			current := a.ws.CurrentID()
			return a.render(projects, func(t *table) {
				t.row("", "ID", "NAME", "DESCRIPTION", "CREATED")
				for _, p := range projects {
					mark := ""
					if p.ID == current {
						mark = "*"
					}
					t.row(mark, p.ID, p.Name, orDash(shorten(p.Description, 40)), formatTime(p.CreatedAt))
				}
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.api.Projects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(p, func(t *table) {
				t.row("ID", p.ID)
				t.row("Name", p.Name)
				t.row("Description", orDash(p.Description))
				t.row("Created", formatTime(p.CreatedAt))
				t.row("Updated", formatTime(p.UpdatedAt))
			})
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project and select it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.ws.Create(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			a.toast.Success("プロジェクトを作成しました", p.Name)
			return a.render(p, func(t *table) { t.row(p.ID, p.Name) })
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "Project description")

	var newName, newDescription string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or describe a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u api.ProjectUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &newName
			}
			if cmd.Flags().Changed("description") {
				u.Description = &newDescription
			}
			if u.Name == nil && u.Description == nil {
				return fmt.Errorf("nothing to update: pass --name or --description")
			}
			if err := a.ws.Refresh(cmd.Context()); err != nil {
				return err
			}
			p, err := a.ws.Update(cmd.Context(), args[0], u)
			if err != nil {
				return err
			}
			a.toast.Success("プロジェクトを更新しました", p.Name)
			return a.render(p, func(t *table) { t.row(p.ID, p.Name) })
		},
	}
	update.Flags().StringVar(&newName, "name", "", "New name")
	update.Flags().StringVarP(&newDescription, "description", "d", "", "New description")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ws.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.ws.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.toast.Success("プロジェクトを削除しました", args[0])
			return nil
		},
	}

	use := &cobra.Command{
		Use:   "use <id>",
		Short: "Select the current project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.ws.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.ws.Select(args[0]); err != nil {
				return err
			}
			p, _ := a.ws.Current()
			a.toast.Success("プロジェクトを切り替えました", p.Name)
			return nil
		},
	}

	current := &cobra.Command{
		Use:   "current",
		Short: "Print the project ID commands run against",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, a.projectID(cmd.Context()))
			return nil
		},
	}

	cmd.AddCommand(list, get, create, update, del, use, current)
	return cmd
}
