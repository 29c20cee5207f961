package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/PriorArt-Intelligence/internal/application/scoring"
	"github.com/turtacn/PriorArt-Intelligence/internal/application/similarity"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/analysis"
	"github.com/turtacn/PriorArt-Intelligence/internal/domain/priorart"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/embedding"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/client"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

const defaultTop = 20

type analyzeOptions struct {
	title       string
	abstract    string
	keywords    []string
	profileFile string
	noWait      bool
	top         int

	local          bool
	candidatesFile string
	schema         string
}

func newAnalyzeCmd() *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Rank prior art for a research profile and score the technology",
		Long: "analyze submits a profile to the API server and waits up to 30s for the result.\n" +
			"The job keeps running on the server if the wait times out; use 'priorart status'.\n" +
			"With --local the ranking runs in-process against a JSON candidate file using\n" +
			"the hashing embedder.",
		Example: `  priorart analyze --title "Solid-state battery" --abstract "A sulfide electrolyte ..."
  priorart analyze --profile profile.json --local --candidates docs.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.title, "title", "", "profile title")
	f.StringVar(&o.abstract, "abstract", "", "profile abstract")
	f.StringSliceVar(&o.keywords, "keywords", nil, "comma separated keywords")
	f.StringVar(&o.profileFile, "profile", "", "JSON file with title, abstract and keywords; flags override it")
	f.BoolVar(&o.noWait, "no-wait", false, "print the job id and return immediately")
	f.IntVar(&o.top, "top", defaultTop, "documents to show per section")
	f.BoolVar(&o.local, "local", false, "rank in-process instead of calling the server")
	f.StringVar(&o.candidatesFile, "candidates", "", "JSON array of candidate documents (with --local)")
	f.StringVar(&o.schema, "schema", string(priorart.SchemaPatentIndex), "candidate schema: patent_index, logic_mill or openalex")
	return cmd
}

func (o *analyzeOptions) profile() (priorart.Profile, error) {
	var p priorart.Profile
	if o.profileFile != "" {
		data, err := os.ReadFile(o.profileFile)
		if err != nil {
			return p, fmt.Errorf("failed to read profile file: %w", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return p, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed profile file")
		}
	}
	if o.title != "" {
		p.Title = o.title
	}
	if o.abstract != "" {
		p.Abstract = o.abstract
	}
	if len(o.keywords) > 0 {
		p.Keywords = o.keywords
	}
	return priorart.NewProfile(p.Title, p.Abstract, p.Keywords)
}

func runAnalyze(cmd *cobra.Command, o *analyzeOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	profile, err := o.profile()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if o.local {
		result, err := runLocalAnalysis(cmd.Context(), cliCtx, profile, o)
		if err != nil {
			return err
		}
		if cliCtx.OutputFormat == "json" {
			return printJSON(out, result)
		}
		renderResult(out, result, o.top)
		return nil
	}

	callCtx, cancel := cliCtx.callContext(cmd.Context())
	sub, err := cliCtx.Analyses.Submit(callCtx, client.ProfileRequest{
		Title: profile.Title, Abstract: profile.Abstract, Keywords: profile.Keywords,
	})
	cancel()
	if err != nil {
		return err
	}
	cliCtx.Logger.Info("analysis submitted", logging.String("job_id", sub.JobID))
	if o.noWait {
		if cliCtx.OutputFormat == "json" {
			return printJSON(out, sub)
		}
		fmt.Fprintf(out, "Submitted job %s\n", sub.JobID)
		return nil
	}

	view, err := cliCtx.Analyses.Wait(cmd.Context(), sub.JobID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeTimeout) {
			return errors.Wrap(err, errors.ErrCodeTimeout, "analysis still running").
				WithDetail("check later with: priorart status " + sub.JobID)
		}
		return err
	}
	if cliCtx.OutputFormat == "json" {
		return printJSON(out, view)
	}
	renderStatus(out, view, o.top)
	return nil
}

// runLocalAnalysis ranks the candidate file with the hashing embedder and
// scores the result with the configured market table.
func runLocalAnalysis(ctx context.Context, cliCtx *CLIContext, profile priorart.Profile, o *analyzeOptions) (*analysis.Result, error) {
	if o.candidatesFile == "" {
		return nil, errors.NewValidationError("invalid flags", []errors.FieldViolation{
			{Field: "candidates", Message: "is required with --local"},
		})
	}
	docs, err := readDocuments(o.candidatesFile, priorart.Schema(o.schema), cliCtx.Logger)
	if err != nil {
		return nil, err
	}

	dim := 0
	if cliCtx.Config != nil && cliCtx.Config.Embedding.Provider == "hashing" {
		dim = cliCtx.Config.Embedding.Dimension
	}
	engine := similarity.NewEngine(embedding.NewHashingEmbedder(dim), similarity.WithLogger(cliCtx.Logger))
	ranked, err := engine.Rank(ctx, profile, docs)
	if err != nil {
		return nil, err
	}

	table := scoring.DefaultMarketTable()
	if cliCtx.Config != nil && cliCtx.Config.Engine.MarketTablePath != "" {
		if table, err = scoring.LoadMarketTable(cliCtx.Config.Engine.MarketTablePath); err != nil {
			return nil, err
		}
	}
	return scoring.NewPipeline(scoring.NewMarketTableStore(table)).Score("local", profile, ranked), nil
}

// readDocuments normalises a JSON array of source records. Rejected records
// are logged; the call fails only when none survive.
func readDocuments(path string, schema priorart.Schema, logger logging.Logger) ([]priorart.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents file: %w", err)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "documents file must be a JSON array")
	}
	docs, errs := priorart.NormalizeAll(schema, raws)
	for _, e := range errs {
		logger.Warn("skipping document", logging.Err(e))
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.ErrCodeDocumentInvalid, "no usable documents").
			WithDetail(fmt.Sprintf("%d records rejected", len(errs)))
	}
	return docs, nil
}
