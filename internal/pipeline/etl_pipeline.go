package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"jobs-etl/internal/database"
	"jobs-etl/internal/database/schema"
	"jobs-etl/internal/errs"
	"jobs-etl/internal/extract"
	"jobs-etl/internal/load"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/transform"

	"github.com/google/uuid"
)

const (
	StageEnsureSchema = "ensure_schema"
	StageExtract      = "extract"
	StageTransform    = "transform"
	StageLoad         = "load"
)

type Options struct {
	SourcePath string
	StagingDir string
	Delimiter  rune
}

// State is what the stages of one run hand to each other.
type State struct {
	RunID uuid.UUID
	DB    database.DB

	IntermediatePath string
	RecordsPath      string

	Extracted   int
	Transformed int
	Report      load.Report
}

// Stage is one named step of a run. Stages run in the order Stages returns
// them and each one reads only what the previous ones left in State.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st *State) error
}

type StageTiming struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
}

type Result struct {
	RunID      uuid.UUID     `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageTiming `json:"stages"`

	Extracted   int         `json:"extracted"`
	Transformed int         `json:"transformed"`
	Report      load.Report `json:"report"`

	// Err is the error that aborted the run, if any.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Succeeded reports a run that finished every stage with no failed record.
func (r Result) Succeeded() bool {
	return r.Err == nil && len(r.Report.Failures) == 0
}

func (r Result) FailedIndices() []int {
	return r.Report.FailedIndices()
}

type Pipeline struct {
	opts    Options
	connect database.Connector

	extractor   *extract.Extractor
	transformer *transform.Transformer
	loader      *load.Loader

	log *logging.Logger
	now func() time.Time
}

func NewPipeline(opts Options, connect database.Connector, logger *logging.Logger) *Pipeline {
	if opts.StagingDir == "" {
		opts.StagingDir = "staging"
	}
	return &Pipeline{
		opts:    opts,
		connect: connect,
		extractor: extract.NewExtractor(extract.Options{
			StagingDir: opts.StagingDir,
			Delimiter:  opts.Delimiter,
		}, logger),
		transformer: transform.NewTransformer(logger),
		loader:      load.NewLoader(logger),
		log:         logger,
		now:         time.Now,
	}
}

// Stages returns the run's steps in execution order.
func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: StageEnsureSchema, Run: p.ensureSchema},
		{Name: StageExtract, Run: p.extract},
		{Name: StageTransform, Run: p.transform},
		{Name: StageLoad, Run: p.load},
	}
}

// Run executes every stage once against a freshly acquired store handle. The
// handle is closed before Run returns, whatever the outcome. Source, mapping
// and schema errors abort the run; per-record load failures do not and are
// reported in the result.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.New(), StartedAt: p.now()}
	log := p.log.With("pipeline", "etl", "run_id", res.RunID.String())

	log.Info("pipeline status", "status", "started")
	defer func() {
		log.Info("pipeline status",
			"status", "finished",
			"duration", p.now().Sub(res.StartedAt).String(),
			"loaded", res.Report.Loaded,
			"failed", len(res.Report.Failures),
		)
	}()

	fail := func(err error) (Result, error) {
		res.Err = err
		res.Error = err.Error()
		res.FinishedAt = p.now()
		return res, err
	}

	if p.connect == nil {
		return fail(errs.SchemaConflict("no store connector configured", nil))
	}
	db, err := p.connect(ctx)
	if err != nil {
		return fail(errs.SchemaConflict("store unreachable", err))
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Warn("close store handle", "error", cerr)
		}
	}()

	st := &State{RunID: res.RunID, DB: db}
	for _, stage := range p.Stages() {
		start := p.now()
		log.Info("pipeline step", "step", stage.Name, "status", "started")

		err := stage.Run(ctx, st)
		timing := StageTiming{Name: stage.Name, Status: "finished", Duration: p.now().Sub(start)}
		if err != nil {
			timing.Status = "error"
		}
		res.Stages = append(res.Stages, timing)
		res.Extracted = st.Extracted
		res.Transformed = st.Transformed
		res.Report = st.Report

		if err != nil {
			log.Error("pipeline step", "step", stage.Name, "status", "error", "error", err)
			return fail(fmt.Errorf("%s: %w", stage.Name, err))
		}
		log.Info("pipeline step", "step", stage.Name, "status", "finished", "duration", timing.Duration.String())
	}

	res.FinishedAt = p.now()
	if n := len(res.Report.Failures); n > 0 {
		log.Warn("pipeline summary", "failed_indices", res.FailedIndices(), "failed", n)
	}
	return res, nil
}

func (p *Pipeline) ensureSchema(ctx context.Context, st *State) error {
	return schema.NewManager(st.DB, p.log).EnsureSchema(ctx)
}

func (p *Pipeline) extract(ctx context.Context, st *State) error {
	out, err := p.extractor.Run(ctx, p.opts.SourcePath)
	if err != nil {
		return err
	}
	st.IntermediatePath = out.Path
	st.Extracted = out.Rows
	return nil
}

func (p *Pipeline) transform(ctx context.Context, st *State) error {
	records, err := p.transformer.Transform(ctx, st.IntermediatePath)
	if err != nil {
		return err
	}
	path := filepath.Join(p.opts.StagingDir, transform.RecordsFile)
	n, err := transform.WriteJSONL(records, path)
	if err != nil {
		return err
	}
	st.RecordsPath = path
	st.Transformed = n
	return nil
}

func (p *Pipeline) load(ctx context.Context, st *State) error {
	records, err := transform.ReadJSONL(st.RecordsPath)
	if err != nil {
		return err
	}
	rep, err := p.loader.Load(ctx, records, st.DB)
	st.Report = rep
	return err
}
