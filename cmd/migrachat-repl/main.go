// migrachat-repl is the interactive terminal front-end. It talks to a
// running migrachat API server over HTTP and renders the conversation with
// pterm.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/migrachat/migrachat/internal/chat"
	"github.com/migrachat/migrachat/internal/repl"
)

var (
	baseURL string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "migrachat-repl",
	Short:         "Interactive chat over the student migration dataset",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database connection status and question count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the tables and columns the assistant can query",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		info, err := client.SchemaInfo(cmd.Context())
		if err != nil {
			return err
		}
		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Database")).
			WithTopPadding(1).
			WithBottomPadding(1).
			WithLeftPadding(1).
			WithRightPadding(1).
			Println(info.Database)
		for _, table := range info.Tables {
			pterm.Println()
			pterm.NewStyle(pterm.Bold).Println(table.Name)
			items := make([]pterm.BulletListItem, 0, len(table.Columns))
			for _, column := range table.Columns {
				items = append(items, pterm.BulletListItem{
					Level: 0,
					Text:  fmt.Sprintf("%s  %s", column.Name, column.Type),
				})
			}
			_ = pterm.DefaultBulletList.WithItems(items).Render()
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation so far",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		entries, err := client.History(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			pterm.Println("No questions asked yet.")
			return nil
		}
		for _, entry := range entries {
			printEntry(entry)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversation history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.ClearHistory(cmd.Context()); err != nil {
			return err
		}
		pterm.Println("History cleared.")
		return nil
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Re-establish the server's database connection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		status, err := client.Reconnect(cmd.Context())
		if err != nil {
			return err
		}
		if status.DBConnected {
			pterm.NewStyle(pterm.FgGreen).Println("Database: connected")
		} else {
			pterm.NewStyle(pterm.FgRed).Println("Database: disconnected")
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		answer, err := client.Submit(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		pterm.Println(answer.Answer)
		return nil
	},
}

func runChat(cmd *cobra.Command) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Println("Student Migration Analytics")
	pterm.Println("Ask questions about global student migration data. Type 'exit' to leave.")
	pterm.Println()

	if samples, err := client.SampleQuestions(ctx); err == nil && len(samples) > 0 {
		pterm.NewStyle(pterm.Bold).Println("Sample questions:")
		items := make([]pterm.BulletListItem, 0, len(samples))
		for _, sample := range samples {
			items = append(items, pterm.BulletListItem{Level: 0, Text: sample})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
		pterm.Println()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		question := ""
		if preset, err := client.TakePreset(ctx); err == nil && preset != "" {
			question = preset
			pterm.Printf("You: %s\n", question)
		} else {
			pterm.Print("You: ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			question = strings.TrimSpace(scanner.Text())
		}
		if question == "" {
			continue
		}

		spinner, _ := pterm.DefaultSpinner.Start("Thinking...")
		answer, err := client.Submit(ctx, question)
		if spinner != nil {
			_ = spinner.Stop()
		}
		if err != nil {
			pterm.NewStyle(pterm.FgRed).Printfln("Error: %v", err)
			continue
		}

		pterm.NewStyle(pterm.FgGreen).Printfln("Assistant: %s", answer.Answer)
		pterm.Println()
		if answer.Terminated {
			return nil
		}
	}
}

func newClient() (*repl.Client, error) {
	return repl.NewClient(repl.Options{BaseURL: baseURL, Timeout: timeout})
}

func printStatus(status repl.Status) {
	if status.DBConnected {
		pterm.NewStyle(pterm.FgGreen).Println("Database: connected")
	} else {
		pterm.NewStyle(pterm.FgRed).Println("Database: disconnected")
	}
	pterm.Printf("Questions asked: %d\n", status.QuestionsAsked)
}

func printEntry(entry chat.Entry) {
	switch entry.Speaker {
	case chat.SpeakerUser:
		pterm.Printf("You: %s\n", entry.Text)
	default:
		pterm.NewStyle(pterm.FgGreen).Printfln("Assistant: %s", entry.Text)
	}
}

func main() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url",
		envOr("MIGRACHAT_API_URL", "http://localhost:8080"), "migrachat API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "HTTP timeout")
	rootCmd.AddCommand(statusCmd, schemaCmd, historyCmd, clearCmd, reconnectCmd, askCmd)

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
