package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/notesync/pkg/core"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the synced notes in the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		notes, err := app.Local.GetAllNotes(context.Background())
		if err != nil {
			return err
		}
		return printNotes(notes)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "List notes whose front-matter or body contains text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		notes, err := app.Local.Search(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printNotes(notes)
	},
}

var unprocessedCmd = &cobra.Command{
	Use:   "unprocessed",
	Short: "Print embeds for notes not yet checked off elsewhere in the vault",
	Long: `A note counts as processed once another file links it from a checked
task, e.g. "- [x] ![[Note]]". The output is a task list of the remaining
notes, ready to paste into a daily note.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		notes, err := app.Local.Unprocessed(context.Background())
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Printf("- [ ] ![[%s]]\n", n.Stem())
		}
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty note remotely and in the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp()
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.NewNote(context.Background())
		if err != nil {
			return err
		}
		if l, ok := app.Local.Lookup(n.ID); ok {
			fmt.Println(l.Path)
			return nil
		}
		fmt.Println(n.ID)
		return nil
	},
}

type noteRow struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

func printNotes(notes []core.LocalNote) error {
	if listJSON {
		rows := make([]noteRow, 0, len(notes))
		for _, n := range notes {
			rows = append(rows, noteRow{ID: n.ID(), Path: n.Path, Title: n.FrontMatter.String("title")})
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}
	for _, n := range notes {
		fmt.Printf("%s %s\n", n.ID(), n.Path)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(unprocessedCmd)
	rootCmd.AddCommand(newCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	searchCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
}
