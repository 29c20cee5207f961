package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

type indexRow struct {
	Backend string `json:"backend"`
	Loaded  int    `json:"loaded"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

func newIndexCmd() *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Load documents into the configured search backends",
		Long: "index normalises a JSON array of source records and writes them to every\n" +
			"search backend in the configuration, creating the OpenSearch index and the\n" +
			"Milvus collection when missing. Reloading a document overwrites it.",
		Example: `  priorart index patents.json
  priorart index works.json --schema openalex`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			docs, err := readDocuments(args[0], priorart.Schema(schema), cliCtx.Logger)
			if err != nil {
				return err
			}

			loaders, closeFn, err := cliCtx.NewLoaders(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := closeFn(); err != nil {
					cliCtx.Logger.Warn("failed to close search clients", logging.Err(err))
				}
			}()
			if len(loaders) == 0 {
				return errors.NewValidationError("no search backend configured", []errors.FieldViolation{
					{Field: "search", Message: "set search.opensearch.addresses or search.milvus.address"},
				})
			}

			var firstErr error
			rows := make([]indexRow, 0, len(loaders))
			for _, l := range loaders {
				res, err := l.Load(cmd.Context(), docs)
				row := indexRow{Backend: l.Name(), Loaded: res.Loaded, Failed: res.Failed}
				if err != nil {
					row.Error = err.Error()
					if firstErr == nil {
						firstErr = err
					}
				}
				rows = append(rows, row)
			}

			if cliCtx.OutputFormat == "json" {
				if err := printJSON(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
				return firstErr
			}
			t := newTable(cmd.OutOrStdout(), "Backend", "Loaded", "Failed", "Error")
			for _, r := range rows {
				t.Append([]string{r.Backend, strconv.Itoa(r.Loaded), strconv.Itoa(r.Failed), truncate(r.Error, 60)})
			}
			t.Render()
			return firstErr
		},
	}
	cmd.Flags().StringVar(&schema, "schema", string(priorart.SchemaPatentIndex), "record schema: patent_index, logic_mill or openalex")
	return cmd
}
