package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sprite-ai/margin/internal/ai"
	"github.com/sprite-ai/margin/internal/analysis"
	"github.com/sprite-ai/margin/internal/critique"
	"github.com/sprite-ai/margin/internal/model"
)

// ErrFindings is returned by check when any document has findings.
var ErrFindings = errors.New("findings reported")

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Ask the AI model to critique a document",
	Long: `Stream a critique of the document from the configured AI provider and
pin every quoted passage as an annotation.

Modes: passive, consistency, style, critique, custom. Custom mode sends the
text given with --instruction.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Run the offline detectors on a document",
	Long: `Run the heuristic passes (passive voice, repeated words, filler words and
long sentences) without calling an AI model. With --add the findings are
stored as annotations.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Run the offline detectors and report (non-interactive)",
	Long: `Run the heuristic passes over one or more documents and print a report.
Useful for CI and pre-commit hooks.

Exit codes:
  0  clean, no findings
  1  findings reported, or an error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	analyzeCmd.Flags().StringP("mode", "m", ai.ModeCritique, "analysis mode: "+strings.Join(ai.Modes(), ", "))
	analyzeCmd.Flags().StringP("instruction", "i", "", "request text for custom mode")
	analyzeCmd.Flags().BoolP("quiet", "q", false, "do not echo the streamed response")

	detectCmd.Flags().StringSlice("skip", nil, "passes to skip: "+strings.Join(analysis.Names(), ", "))
	detectCmd.Flags().Bool("add", false, "store findings as annotations")
	detectCmd.Flags().StringP("format", "f", "text", "output format: text, json")

	checkCmd.Flags().StringSlice("skip", nil, "passes to skip: "+strings.Join(analysis.Names(), ", "))
	checkCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	if !ai.ValidMode(mode) {
		return fmt.Errorf("unknown mode %q (want one of %s)", mode, strings.Join(ai.Modes(), ", "))
	}
	instruction, _ := cmd.Flags().GetString("instruction")
	quiet, _ := cmd.Flags().GetBool("quiet")

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	p, err := e.provider(cmd.Context())
	if err != nil {
		return err
	}
	eng, err := e.engine(path)
	if err != nil {
		return err
	}
	defer eng.Close()

	out := cmd.OutOrStdout()
	critic := critique.New(p, critique.Options{Logger: e.log, Current: eng.Content})
	fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %s with %s (%s)\n", args[0], critic.Provider(), mode)

	req := ai.Request{Mode: mode, Document: eng.Content(), Instruction: instruction}
	res, runErr := critic.RunRequest(cmd.Context(), req, func(chunk string) {
		if !quiet {
			io.WriteString(out, chunk)
		}
	})
	if !quiet {
		fmt.Fprintln(out)
	}
	if res.Message.ID != "" {
		if err := critique.Record(eng, e.store, res); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(out, "\n%d annotation(s) added", len(res.Annotations))
	if res.Dropped > 0 {
		fmt.Fprintf(out, ", %d quote(s) not found in the document", res.Dropped)
	}
	fmt.Fprintln(out)
	return e.close()
}

func runDetect(cmd *cobra.Command, args []string) error {
	path, err := docPath(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	skip, _ := cmd.Flags().GetStringSlice("skip")
	results := analysis.Run(string(data), skip)

	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	if format == "json" {
		if err := writeFindingsJSON(out, []fileResults{{Path: args[0], Results: results}}); err != nil {
			return err
		}
	} else {
		writeFindingsText(out, []fileResults{{Path: args[0], Results: results}})
	}

	add, _ := cmd.Flags().GetBool("add")
	if !add || len(results.Findings) == 0 {
		return nil
	}

	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	eng, err := e.engine(path)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Detector ids are fresh on every run; skip ranges already annotated
	// so repeat runs do not pile up duplicates.
	taken := make(map[[2]int]bool)
	for _, a := range eng.Active() {
		taken[[2]int{a.From, a.To}] = true
	}
	var fresh []model.Annotation
	for _, a := range results.Annotations(nil) {
		if !taken[[2]int{a.From, a.To}] {
			fresh = append(fresh, a)
		}
	}
	if err := eng.AddAnnotations("detect", fresh); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Stored %d annotation(s)\n", len(fresh))
	return e.close()
}

type fileResults struct {
	Path    string
	Results *analysis.Results
}

func runCheck(cmd *cobra.Command, args []string) error {
	skip, _ := cmd.Flags().GetStringSlice("skip")

	files := make([]fileResults, len(args))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range args {
		g.Go(func() error {
			data, err := os.ReadFile(name)
			if err != nil {
				return fmt.Errorf("reading %s: %w", name, err)
			}
			files[i] = fileResults{Path: name, Results: analysis.Run(string(data), skip)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		if err := writeFindingsJSON(out, files); err != nil {
			return err
		}
	case "markdown":
		writeFindingsMarkdown(out, files)
	default:
		writeFindingsText(out, files)
	}

	for _, f := range files {
		if len(f.Results.Findings) > 0 {
			return ErrFindings
		}
	}
	return nil
}

func writeFindingsText(w io.Writer, files []fileResults) {
	for _, f := range files {
		fmt.Fprintf(w, "%s: %s\n", f.Path, f.Results.Summary())
		for _, finding := range f.Results.Findings {
			fmt.Fprintf(w, "  %s:%d [%s] %s\n", f.Path, finding.Line, finding.Pass, finding.Message)
			if finding.Suggestion != "" {
				fmt.Fprintf(w, "      -> %q\n", finding.Suggestion)
			}
		}
	}
}

func writeFindingsMarkdown(w io.Writer, files []fileResults) {
	total := 0
	for _, f := range files {
		total += len(f.Results.Findings)
	}
	fmt.Fprintf(w, "## Prose Check\n\n**%d file(s)**, **%d finding(s)**\n\n", len(files), total)
	if total == 0 {
		fmt.Fprintln(w, "No issues found.")
		return
	}

	fmt.Fprintln(w, "| Pass | Location | Message |")
	fmt.Fprintln(w, "|------|----------|---------|")
	for _, f := range files {
		for _, finding := range f.Results.Findings {
			fmt.Fprintf(w, "| %s | `%s:%d` | %s |\n", finding.Pass, f.Path, finding.Line,
				strings.ReplaceAll(finding.Message, "|", `\|`))
		}
	}
}

func writeFindingsJSON(w io.Writer, files []fileResults) error {
	type jsonFinding struct {
		Pass       string `json:"pass"`
		Type       string `json:"type"`
		Line       int    `json:"line"`
		From       int    `json:"from"`
		To         int    `json:"to"`
		Text       string `json:"text"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion,omitempty"`
	}
	type jsonFile struct {
		Path     string        `json:"path"`
		Summary  string        `json:"summary"`
		Total    int           `json:"total"`
		Findings []jsonFinding `json:"findings"`
	}

	out := make([]jsonFile, 0, len(files))
	for _, f := range files {
		jf := jsonFile{
			Path:     f.Path,
			Summary:  f.Results.Summary(),
			Total:    len(f.Results.Findings),
			Findings: []jsonFinding{},
		}
		for _, finding := range f.Results.Findings {
			jf.Findings = append(jf.Findings, jsonFinding{
				Pass:       finding.Pass,
				Type:       finding.Type.String(),
				Line:       finding.Line,
				From:       finding.From,
				To:         finding.To,
				Text:       finding.Text,
				Message:    finding.Message,
				Suggestion: finding.Suggestion,
			})
		}
		out = append(out, jf)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
