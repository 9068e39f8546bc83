package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/veritexai/internal/pagination"
)

type docOutput struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	NumChunks  int       `json:"num_chunks"`
	IngestedAt time.Time `json:"ingested_at"`
}

type docsOutput struct {
	Documents []docOutput `json:"documents"`
	Cursor    string      `json:"cursor,omitempty"`
	HasMore   bool        `json:"has_more"`
}

// DocsCmd creates the docs command.
func DocsCmd() *cobra.Command {
	var (
		limit      int
		cursorFlag string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List ingested documents",
		Long:  "Lists ingested documents newest first, with cursor pagination.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cursor, err := pagination.DecodeCursor(cursorFlag)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.registry.List(cmd.Context(), cursor, limit)
			if err != nil {
				return err
			}

			if asJSON {
				out := docsOutput{
					Documents: make([]docOutput, 0, len(page.Items)),
					Cursor:    page.Cursor,
					HasMore:   page.HasMore,
				}
				for _, doc := range page.Items {
					out.Documents = append(out.Documents, docOutput{
						ID:         doc.ID,
						Filename:   doc.Filename,
						FileType:   doc.FileType,
						NumChunks:  doc.NumChunks,
						IngestedAt: doc.IngestedAt,
					})
				}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			if len(page.Items) == 0 {
				cmd.Println("no documents ingested")
				return nil
			}
			for _, doc := range page.Items {
				cmd.Printf("%s  %-40s  %4d chunks  %s\n",
					doc.ID, doc.Filename, doc.NumChunks, doc.IngestedAt.Format(time.RFC3339))
			}
			if page.HasMore {
				cmd.Printf("more available: --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of documents")
	cmd.Flags().StringVar(&cursorFlag, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
