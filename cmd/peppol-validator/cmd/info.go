package cmd

import (
	"fmt"
	"os"

	"github.com/beevik/etree"
	"github.com/spf13/cobra"

	"github.com/rezonia/peppol-validator/internal/document"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show information about invoice files",
	Long: `Display document information without running any validation.

Shows:
  - Document kind (Invoice or CreditNote)
  - Identifier, issue date and currency
  - Line count and declared monetary totals

Examples:
  peppol-validator info invoice.xml
  peppol-validator info invoices/*.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	for _, file := range files {
		printFileInfo(file)
		fmt.Println()
	}
	return nil
}

func printFileInfo(filePath string) {
	fmt.Printf("File: %s\n", filePath)

	stat, err := os.Stat(filePath)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}
	fmt.Printf("  Size: %d bytes\n", stat.Size())

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Printf("  Error reading file: %v\n", err)
		return
	}

	doc, err := document.Load(data)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}

	root := doc.Root()
	fmt.Printf("  Kind: %s\n", doc.Kind())
	printField(root, "ID", "ID")
	printField(root, "IssueDate", "Issue date")
	printField(root, "DocumentCurrencyCode", "Currency")

	lineTag := "InvoiceLine"
	if doc.Kind() == document.KindCreditNote {
		lineTag = "CreditNoteLine"
	}
	lines := document.Children(root, document.NSCommonAggregate, lineTag)
	fmt.Printf("  Lines: %d\n", len(lines))

	if totals := document.Child(root, document.NSCommonAggregate, "LegalMonetaryTotal"); totals != nil {
		printField(totals, "LineExtensionAmount", "Line extension total")
		printField(totals, "TaxInclusiveAmount", "Tax inclusive total")
		printField(totals, "PayableAmount", "Payable amount")
	}
}

func printField(el *etree.Element, name, label string) {
	if value := document.ChildText(el, document.NSCommonBasic, name); value != "" {
		fmt.Printf("  %s: %s\n", label, value)
	}
}
