package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/domain"
	"github.com/cloo-solutions/veritexai/internal/service"
)

// queryOutput is the JSON shape of a query result.
type queryOutput struct {
	Context   string           `json:"context"`
	Citations []citationOutput `json:"citations"`
}

type citationOutput struct {
	Filename     string  `json:"filename"`
	SectionTitle string  `json:"section_title,omitempty"`
	PageNumber   int     `json:"page_number,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	Score        float64 `json:"score"`
}

// QueryCmd creates the query command.
func QueryCmd() *cobra.Command {
	var (
		topK     int
		maxChars int
		filters  []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Retrieve context for a question",
		Long:  "Runs hybrid retrieval, reranking, and context assembly for the query and prints the context with citations.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(filters)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.query.Query(cmd.Context(), args[0], service.QueryOptions{
				TopK:            topK,
				MaxContextChars: maxChars,
				Filter:          filter,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd, result)
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks in the final context (default from config)")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Context size bound in characters (default from config)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Metadata filter key=value (document_id, filename, file_type)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

// parseFilter turns repeated key=value flags into a domain filter.
func parseFilter(pairs []string) (domain.Filter, error) {
	var f domain.Filter
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			return f, fmt.Errorf("invalid filter %q (want key=value)", pair)
		}
		switch key {
		case "document_id":
			f.DocumentID = value
		case "filename":
			f.Filename = value
		case "file_type":
			f.FileType = value
		default:
			return f, fmt.Errorf("unknown filter key %q (want document_id, filename, or file_type)", key)
		}
	}
	return f, nil
}

func printResult(cmd *cobra.Command, result domain.ContextResult) {
	if len(result.Chunks) == 0 {
		cmd.Println("no relevant content found")
		return
	}
	cmd.Println(result.Text)
	cmd.Println()
	cmd.Println("Sources:")
	for _, c := range result.Citations {
		line := fmt.Sprintf("  %s, chunk %d", c.Filename, c.ChunkIndex)
		if c.SectionTitle != "" {
			line += ", " + c.SectionTitle
		}
		if c.PageNumber > 0 {
			line += fmt.Sprintf(", p.%d", c.PageNumber)
		}
		cmd.Printf("%s (score %.2f)\n", line, c.Score)
	}
}

func printJSON(cmd *cobra.Command, result domain.ContextResult) error {
	out := queryOutput{
		Context:   result.Text,
		Citations: make([]citationOutput, 0, len(result.Citations)),
	}
	for _, c := range result.Citations {
		out.Citations = append(out.Citations, citationOutput{
			Filename:     c.Filename,
			SectionTitle: c.SectionTitle,
			PageNumber:   c.PageNumber,
			ChunkIndex:   c.ChunkIndex,
			Score:        c.Score,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}
