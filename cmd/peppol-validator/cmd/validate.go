package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/peppol-validator/internal/precheck"
	"github.com/rezonia/peppol-validator/internal/report"
	"github.com/rezonia/peppol-validator/internal/validator"
)

var schematronPaths []string

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice files",
	Long: `Validate one or more UBL invoice or credit note files.

Every file is checked against each given schematron rule set and then
monetarily reconciled. Directories are walked for *.xml files.

Examples:
  peppol-validator validate invoice.xml -s peppol-bis.sch
  peppol-validator validate invoices/ -s bis.sch -s national.sch --format table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringArrayVarP(&schematronPaths, "schematron", "s", nil, "Schematron rule set file (repeatable)")
}

// FileReport holds the result of validating a single file
type FileReport struct {
	File              string             `json:"file"`
	Valid             bool               `json:"valid"`
	DocumentKind      string             `json:"document_kind,omitempty"`
	RulesFired        int                `json:"rules_fired"`
	SuccessfulReports int                `json:"successful_reports"`
	Severity          report.Breakdown   `json:"severity_breakdown"`
	Specifications    []SpecBlock        `json:"specifications,omitempty"`
	Violations        []report.Violation `json:"violations"`
	Errors            []string           `json:"errors,omitempty"`
	DurationMS        int64              `json:"duration_ms"`
}

// SpecBlock summarizes one schematron pass over one file
type SpecBlock struct {
	Title             string `json:"title"`
	RulesFired        int    `json:"rules_fired"`
	Failed            int    `json:"failed_assertions"`
	SuccessfulReports int    `json:"successful_reports"`
}

// ReportDocument is the full JSON report for a run
type ReportDocument struct {
	GeneratedAt            string           `json:"generated_at"`
	Files                  []*FileReport    `json:"files"`
	TotalRulesFired        int              `json:"total_rules_fired"`
	TotalSuccessfulReports int              `json:"total_successful_reports"`
	Severity               report.Breakdown `json:"severity_breakdown"`
	AllValid               bool             `json:"all_valid"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	schematrons, err := readSchematrons(schematronPaths)
	if err != nil {
		return err
	}

	var opts []validator.Option
	if precheckURL != "" {
		var clientOpts []precheck.ClientOption
		if precheckTimeout > 0 {
			clientOpts = append(clientOpts, precheck.WithTimeout(precheckTimeout))
		}
		opts = append(opts, validator.WithPrechecker(precheck.NewClient(precheckURL, clientOpts...)))
		printVerbose("delegating header pre-check to %s\n", precheckURL)
	}
	v := validator.New(opts...)

	doc := &ReportDocument{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		AllValid:    true,
	}

	for _, file := range files {
		fr := validateFile(v, file, schematrons)
		doc.Files = append(doc.Files, fr)
		doc.TotalRulesFired += fr.RulesFired
		doc.TotalSuccessfulReports += fr.SuccessfulReports
		doc.Severity.Fatal += fr.Severity.Fatal
		doc.Severity.Error += fr.Severity.Error
		doc.Severity.Warning += fr.Severity.Warning
		doc.Severity.Info += fr.Severity.Info
		if !fr.Valid {
			doc.AllValid = false
		}
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(doc); err != nil {
			return err
		}
	} else {
		printTable(doc)
	}

	if !doc.AllValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

func validateFile(v *validator.Validator, filePath string, schematrons [][]byte) *FileReport {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fr := &FileReport{File: filePath, Violations: []report.Violation{}}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fr.Errors = append(fr.Errors, fmt.Sprintf("failed to read file: %v", err))
		return fr
	}

	printVerbose("validating %s (%d bytes)\n", filePath, len(data))

	result, err := v.Validate(ctx, data, schematrons)
	if err != nil {
		fr.Errors = append(fr.Errors, err.Error())
		return fr
	}

	fr.Valid = result.Report.ValidationSuccess
	fr.DocumentKind = string(result.Kind)
	fr.RulesFired = result.Report.RulesFired
	fr.SuccessfulReports = result.Report.SuccessfulReports
	fr.Severity = result.Report.Severity
	fr.Violations = result.Report.Violations
	fr.DurationMS = result.Duration.Milliseconds()

	for _, run := range result.Runs {
		failed := 0
		for _, a := range run.Assertions {
			if !a.Passed {
				failed++
			}
		}
		fr.Specifications = append(fr.Specifications, SpecBlock{
			Title:             run.SchemaTitle,
			RulesFired:        run.RulesFired,
			Failed:            failed,
			SuccessfulReports: run.SuccessfulReports,
		})
	}

	return fr
}

func printTable(doc *ReportDocument) {
	for _, fr := range doc.Files {
		switch {
		case len(fr.Errors) > 0:
			fmt.Printf("✗ %s: ERROR\n", fr.File)
			for _, e := range fr.Errors {
				fmt.Printf("  - %s\n", e)
			}
		case fr.Valid:
			fmt.Printf("✓ %s: VALID (%d rules fired)\n", fr.File, fr.RulesFired)
		default:
			fmt.Printf("✗ %s: INVALID (%d rules fired)\n", fr.File, fr.RulesFired)
		}
		for _, v := range fr.Violations {
			fmt.Printf("  [%s] %s: %s\n", v.Severity, v.RuleID, v.Message)
		}
	}
	fmt.Printf("\n%d file(s), %d rules fired, %d fatal, %d error, %d warning, %d info\n",
		len(doc.Files), doc.TotalRulesFired,
		doc.Severity.Fatal, doc.Severity.Error, doc.Severity.Warning, doc.Severity.Info)
}

func readSchematrons(paths []string) ([][]byte, error) {
	var out [][]byte
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read schematron %s: %w", p, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			if _, err := os.Stat(arg); err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				err := filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
					if err != nil {
						return err
					}
					if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".xml") {
						files = append(files, path)
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
			} else {
				files = append(files, match)
			}
		}
	}

	return files, nil
}
