package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"gwi.com/resume-screener/internal/core"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze --jd <file> [--ask <question>]... <resume.pdf>...",
	Short: "Analyze resumes from the command line and optionally ask questions about them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyze(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("jd", "", "file containing the job description")
	analyzeCmd.Flags().StringArray("ask", nil, "question to answer about the analyzed resumes (repeatable)")
	_ = analyzeCmd.MarkFlagRequired("jd")
}

func analyze(cmd *cobra.Command, files []string) error {
	jdPath, _ := cmd.Flags().GetString("jd")
	questions, _ := cmd.Flags().GetStringArray("ask")

	jd, err := os.ReadFile(jdPath)
	if err != nil {
		return fmt.Errorf("reading job description: %w", err)
	}
	if strings.TrimSpace(string(jd)) == "" {
		return fmt.Errorf("job description file %s is empty", jdPath)
	}

	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads := make([]core.Upload, 0, len(files))
	for _, path := range files {
		u := core.Upload{Filename: filepath.Base(path)}
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			u.Content = f
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", path, err)
		}
		uploads = append(uploads, u)
	}

	result, err := a.analysis.Analyze(cmd.Context(), string(jd), uploads)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	for _, q := range questions {
		answer, err := a.rag.Answer(cmd.Context(), result.SessionID, q)
		if err != nil {
			return fmt.Errorf("answering %q: %w", q, err)
		}
		fmt.Fprintf(out, "\nQ: %s\nA: %s\n", q, answer)
	}
	return nil
}
