package container

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"sentinel/adapters/detector"
	"sentinel/adapters/llm"
	"sentinel/adapters/memory"
	"sentinel/adapters/notify"
	"sentinel/adapters/postgres"
	"sentinel/adapters/ta"
	"sentinel/app"
	"sentinel/domain/core"
	"sentinel/internal/config"
	"sentinel/internal/consensus"
	"sentinel/internal/errors"
	"sentinel/internal/fleet"
	"sentinel/internal/metrics"
	"sentinel/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Log    *zap.SugaredLogger

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Metrics

	// Repositories (data access layer)
	DetectorRepo ports.DetectorRepository
	FindingRepo  ports.FindingRepository
	GovernorRepo ports.GovernorRepository

	// Fleet components
	Registry   *fleet.Registry
	Supervisor *fleet.RunSupervisor
	Tracker    *fleet.Tracker
	Governor   *fleet.Governor
	Scheduler  *fleet.Scheduler

	// Consensus components
	Aggregator *consensus.Aggregator
	Gate       *consensus.Gate

	// Services
	FleetService    *app.FleetService
	AnalysisService *app.AnalysisService
}

// New wires the full dependency graph. With no DATABASE_URL configured the
// in-memory repositories take over, which is the development mode.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Container, error) {
	c := &Container{Config: cfg, Log: log, Metrics: metrics.New()}

	if err := c.initStorage(); err != nil {
		return nil, err
	}
	if err := c.initFleet(); err != nil {
		return nil, err
	}
	if err := c.initConsensus(); err != nil {
		return nil, err
	}
	c.initServices()

	if err := c.resume(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Container) initStorage() error {
	if c.Config.Database.URL == "" {
		c.Log.Info("no DATABASE_URL configured, using in-memory persistence")
		c.DetectorRepo = memory.NewDetectorRepository()
		c.FindingRepo = memory.NewFindingRepository()
		c.GovernorRepo = memory.NewGovernorRepository()
		return nil
	}

	db, err := sqlx.Connect("postgres", c.Config.Database.URL)
	if err != nil {
		return errors.DatabaseError("database connection failed", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := postgres.EnsureSchema(db); err != nil {
		return errors.DatabaseError("schema setup failed", err)
	}

	c.DB = db
	c.DetectorRepo = postgres.NewDetectorRepository(db)
	c.FindingRepo = postgres.NewFindingRepository(db)
	c.GovernorRepo = postgres.NewGovernorRepository(db)
	return nil
}

func (c *Container) initFleet() error {
	fc := c.Config.Fleet

	c.Registry = fleet.NewRegistry(c.Log)
	c.Supervisor = fleet.NewRunSupervisor(c.Registry, c.DetectorRepo, fc.RunTimeout, fc.FailureThreshold, c.Log, c.Metrics)
	c.Tracker = fleet.NewTracker(c.Registry, fc.DecayHalfLife, fc.DecayBaseline, fc.DemotionThreshold, c.Log)
	c.Governor = fleet.NewGovernor(c.Config.Governor.RiskLimit, c.Config.Governor.FailureWeight, c.GovernorRepo, c.Log, c.Metrics)
	c.Scheduler = fleet.NewScheduler(c.Registry, c.Supervisor, c.Governor, c.Tracker,
		fc.TickCadence, fc.QuarantineCooldown, fc.MaxConcurrent, c.Log, c.Metrics)

	return c.Registry.Register(detector.NewHeartbeat(), fleet.Spec{
		Category:  "ops",
		Interval:  time.Minute,
		AlwaysRun: true,
	})
}

func (c *Container) initConsensus() error {
	cc := c.Config.Consensus

	var backends []ports.VoteBackend
	if cc.OpenAIKey != "" {
		council, err := llm.NewCouncil(cc.CouncilModels, llm.Config{
			APIKey:      cc.OpenAIKey,
			BaseURL:     cc.OpenAIBaseURL,
			Temperature: float32(cc.Temperature),
		})
		if err != nil {
			return errors.Wrapf(err, "council setup failed for models %v", cc.CouncilModels)
		}
		backends = council
	} else {
		// Offline development: a neutral council that never escalates.
		c.Log.Warn("no OPENAI_API_KEY configured, council votes are mocked")
		for _, model := range cc.CouncilModels {
			backends = append(backends, &llm.MockBackend{
				BackendName: model,
				Response:    core.ModelVote{Action: core.ActionWatch, Confidence: 0.5},
			})
		}
	}

	var prices ports.PriceSource
	if cc.PriceAPIURL != "" {
		prices = ta.NewHTTPPriceSource(cc.PriceAPIURL, cc.VoteTimeout)
	} else {
		prices = ta.NewSyntheticPriceSource()
	}
	taVoter := ta.NewTrendVoter(prices, cc.PricePoints)

	c.Aggregator = consensus.NewAggregator(backends, taVoter, cc.VoteTimeout, c.Log, c.Metrics)

	var notifier ports.Notifier
	if c.Config.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(c.Config.Notify.WebhookURL, c.Config.Notify.Timeout)
	} else {
		notifier = notify.NewLogNotifier(c.Log)
	}
	c.Gate = consensus.NewGate(notifier, cc.EscalationFloor, c.Log, c.Metrics)
	return nil
}

func (c *Container) initServices() {
	cc := c.Config.Consensus
	c.AnalysisService = app.NewAnalysisService(c.FindingRepo, c.Aggregator, c.Gate, c.Governor,
		cc.RouteFloor, cc.ConfidenceBoost, cc.BoostThreshold, c.Log)
	c.FleetService = app.NewFleetService(c.Registry, c.Scheduler, c.Tracker, c.Governor, c.Log)

	// Run outcomes flow from the scheduler into the analysis pipeline.
	c.Scheduler.SetRecorder(c.AnalysisService)
}

// resume restores persisted detector and governor state from the last run.
func (c *Container) resume() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshots, err := c.DetectorRepo.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "detector snapshot restore failed")
	}
	c.Registry.Resume(snapshots)

	st, err := c.GovernorRepo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "governor state restore failed")
	}
	c.Governor.Resume(st)
	return nil
}

// Close releases held resources.
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
