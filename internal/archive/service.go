package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/studioledger/studioledger/internal/backup"
	"github.com/studioledger/studioledger/internal/catalog"
	"github.com/studioledger/studioledger/internal/earnings"
	"github.com/studioledger/studioledger/internal/payout"
	"github.com/studioledger/studioledger/internal/rates"
	"github.com/studioledger/studioledger/internal/shared"
)

type rateSource interface {
	FreshActiveRates(ctx context.Context) (rates.RateSet, error)
	ModelConfig(ctx context.Context, modelID uuid.UUID) (rates.ModelConfig, error)
	ResolvedPercentage(ctx context.Context, modelID uuid.UUID) (float64, error)
}

type platformSource interface {
	ActiveIndex(ctx context.Context) (catalog.Index, error)
}

type rawStore interface {
	ListRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) ([]earnings.RawValue, error)
	CountRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) (int, error)
	DeleteRange(ctx context.Context, modelID uuid.UUID, from, to time.Time) (int, error)
}

type archiveStore interface {
	UpsertRecords(ctx context.Context, records []Record) error
	VerifyPeriod(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (VerifyReport, error)
	ListForPeriod(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) ([]Record, error)
}

type safetyStore interface {
	UpsertRows(ctx context.Context, rows []backup.SafetyRow) (int, error)
	Count(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (int, error)
	MarkVerified(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) error
	MarkDeleted(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) error
}

type runGuard interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

type metrics interface {
	ClosureRun(outcome string)
	ArchivedRows(n int)
	DeletedRows(n int)
	VerificationFailure()
}

type auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the archive-and-reset saga. The steps are an ordered list
// and step N+1 only runs when step N returned success; only the delete
// step is destructive and it never runs without a verified archive and a
// verified backup covering the exact raw rows.
type Service struct {
	rates     rateSource
	platforms platformSource
	raws      rawStore
	archive   archiveStore
	safety    safetyStore
	guard     runGuard
	logger    *slog.Logger
	metrics   metrics
	audit     auditor
}

// Deps bundles the service dependencies.
type Deps struct {
	Rates     rateSource
	Platforms platformSource
	Raws      rawStore
	Archive   archiveStore
	Safety    safetyStore
	Guard     runGuard
	Logger    *slog.Logger
	Metrics   metrics
	Audit     auditor
}

// NewService constructs the archive service.
func NewService(d Deps) *Service {
	return &Service{
		rates:     d.Rates,
		platforms: d.Platforms,
		raws:      d.Raws,
		archive:   d.Archive,
		safety:    d.Safety,
		guard:     d.Guard,
		logger:    d.Logger,
		metrics:   d.Metrics,
		audit:     d.Audit,
	}
}

type runState struct {
	modelID    uuid.UUID
	periodType shared.PeriodType
	reference  time.Time
	from, to   time.Time

	rateSet      rates.RateSet
	config       rates.ModelConfig
	percentage   float64
	index        catalog.Index
	raws         []earnings.RawValue
	consolidated []earnings.RawValue
	records      []Record
	backupCount  int
	deleted      int
	noop         bool
}

type step struct {
	name string
	run  func(ctx context.Context, st *runState) error
}

func (s *Service) steps() []step {
	return []step{
		{"resolve_rates_and_config", s.stepResolve},
		{"load_platform_catalog", s.stepCatalog},
		{"load_raw_values", s.stepLoadRaws},
		{"consolidate", s.stepConsolidate},
		{"compute_derived_values", s.stepCompute},
		{"write_archive", s.stepWriteArchive},
		{"verify_archive", s.stepVerifyArchive},
		{"safety_backup", s.stepSafetyBackup},
		{"re_verify", s.stepReVerify},
		{"delete_raw_values", s.stepDelete},
		{"flag_backup_deleted", s.stepFlagBackup},
	}
}

// ArchiveAndReset snapshots, verifies, backs up, and only then purges a
// model's raw values for one half-month period. Finding no raw values is
// success with zero archived and deleted rows.
func (s *Service) ArchiveAndReset(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) (Result, error) {
	if !periodType.Valid() {
		return Result{}, shared.ErrInvalidPeriodType
	}
	from, to, err := shared.PeriodRange(periodDate, periodType)
	if err != nil {
		return Result{}, err
	}

	key := shared.ArchiveRunKey(modelID, from, periodType)
	if s.guard != nil {
		if err := s.guard.Acquire(ctx, key); err != nil {
			return Result{}, err
		}
		defer func() {
			_ = s.guard.Release(context.WithoutCancel(ctx), key)
		}()
	}

	st := &runState{
		modelID:    modelID,
		periodType: periodType,
		reference:  from,
		from:       from,
		to:         to,
	}

	for _, step := range s.steps() {
		if err := step.run(ctx, st); err != nil {
			s.observeOutcome("failed")
			return Result{}, fmt.Errorf("archive: step %s: %w", step.name, err)
		}
		if st.noop {
			s.observeOutcome("noop")
			return Result{}, nil
		}
	}

	s.observeOutcome("completed")
	if s.metrics != nil {
		s.metrics.ArchivedRows(len(st.records))
		s.metrics.DeletedRows(st.deleted)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "closure.archive",
			Entity:   "earnings_history",
			EntityID: modelID.String(),
			Meta: map[string]any{
				"period_date": from.Format("2006-01-02"),
				"period_type": string(periodType),
				"archived":    len(st.records),
				"deleted":     st.deleted,
			},
		})
	}
	if s.logger != nil {
		s.logger.Info("archive and reset completed",
			slog.String("model_id", modelID.String()),
			slog.Time("period_date", from),
			slog.String("period_type", string(periodType)),
			slog.Int("archived", len(st.records)),
			slog.Int("deleted", st.deleted),
		)
	}
	return Result{Archived: len(st.records), Deleted: st.deleted}, nil
}

// History returns the archived rows for a closed period.
func (s *Service) History(ctx context.Context, modelID uuid.UUID, periodDate time.Time, periodType shared.PeriodType) ([]Record, error) {
	if !periodType.Valid() {
		return nil, shared.ErrInvalidPeriodType
	}
	return s.archive.ListForPeriod(ctx, modelID, shared.PeriodReference(periodDate), periodType)
}

func (s *Service) observeOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ClosureRun(outcome)
	}
}

func (s *Service) stepResolve(ctx context.Context, st *runState) error {
	rateSet, err := s.rates.FreshActiveRates(ctx)
	if err != nil {
		return err
	}
	cfg, err := s.rates.ModelConfig(ctx, st.modelID)
	if err != nil {
		return err
	}
	pct, err := s.rates.ResolvedPercentage(ctx, st.modelID)
	if err != nil {
		return err
	}
	st.rateSet = rateSet
	st.config = cfg
	st.percentage = pct
	return nil
}

func (s *Service) stepCatalog(ctx context.Context, st *runState) error {
	index, err := s.platforms.ActiveIndex(ctx)
	if err != nil {
		return err
	}
	st.index = index
	return nil
}

func (s *Service) stepLoadRaws(ctx context.Context, st *runState) error {
	raws, err := s.raws.ListRange(ctx, st.modelID, st.from, st.to)
	if err != nil {
		return err
	}
	if len(raws) == 0 {
		st.noop = true
		return nil
	}
	st.raws = raws
	return nil
}

func (s *Service) stepConsolidate(ctx context.Context, st *runState) error {
	st.consolidated = earnings.Consolidate(st.raws)
	return nil
}

func (s *Service) stepCompute(ctx context.Context, st *runState) error {
	records := make([]Record, 0, len(st.consolidated))
	for _, raw := range st.consolidated {
		currency := st.index.CurrencyFor(raw.PlatformID)
		applied := st.percentage
		if payout.IsSuperfoon(raw.PlatformID) {
			applied = 100
		}
		bd := payout.Compute(raw.Value, raw.PlatformID, currency, st.percentage, st.rateSet)
		records = append(records, Record{
			ModelID:            st.modelID,
			PlatformID:         raw.PlatformID,
			PeriodDate:         st.reference,
			PeriodType:         st.periodType,
			Value:              raw.Value,
			RateEURUSD:         st.rateSet.EURUSD,
			RateGBPUSD:         st.rateSet.GBPUSD,
			RateUSDCOP:         st.rateSet.USDCOP,
			PlatformPercentage: applied,
			ValueUSDBruto:      bd.USDGross,
			ValueUSDModelo:     bd.USDModel,
			ValueCOPModelo:     bd.COPModel,
		})
	}
	st.records = records
	return nil
}

func (s *Service) stepWriteArchive(ctx context.Context, st *runState) error {
	return s.archive.UpsertRecords(ctx, st.records)
}

func (s *Service) stepVerifyArchive(ctx context.Context, st *runState) error {
	return s.verifyArchive(ctx, st)
}

func (s *Service) stepSafetyBackup(ctx context.Context, st *runState) error {
	ratesJSON, err := json.Marshal(st.rateSet)
	if err != nil {
		return err
	}
	configJSON, err := json.Marshal(map[string]any{
		"percentage_override": st.config.PercentageOverride,
		"group_percentage":    st.config.GroupPercentage,
		"resolved":            st.percentage,
	})
	if err != nil {
		return err
	}
	rows := make([]backup.SafetyRow, 0, len(st.raws))
	for _, raw := range st.raws {
		rows = append(rows, backup.SafetyRow{
			ModelID:    st.modelID,
			PlatformID: raw.PlatformID,
			ValueDate:  raw.PeriodDate,
			PeriodDate: st.reference,
			PeriodType: st.periodType,
			Value:      raw.Value,
			UpdatedAt:  raw.UpdatedAt,
			RatesJSON:  ratesJSON,
			ConfigJSON: configJSON,
		})
	}
	count, err := s.safety.UpsertRows(ctx, rows)
	if err != nil {
		return err
	}
	st.backupCount = count
	if count != len(st.raws) {
		s.observeVerifyFailure()
		return fmt.Errorf("%w: backed up %d of %d raw rows", ErrBackupCountMismatch, count, len(st.raws))
	}
	return nil
}

func (s *Service) stepReVerify(ctx context.Context, st *runState) error {
	if err := s.verifyArchive(ctx, st); err != nil {
		return err
	}
	count, err := s.safety.Count(ctx, st.modelID, st.reference, st.periodType)
	if err != nil {
		return err
	}
	if count != len(st.raws) {
		s.observeVerifyFailure()
		return fmt.Errorf("%w: backup covers %d of %d raw rows", ErrBackupCountMismatch, count, len(st.raws))
	}
	// A calculator write that landed after load_raw_values would be purged
	// without ever reaching the archive. Recount before the delete runs.
	live, err := s.raws.CountRange(ctx, st.modelID, st.from, st.to)
	if err != nil {
		return err
	}
	if live != len(st.raws) {
		s.observeVerifyFailure()
		return fmt.Errorf("%w: loaded %d rows, table now holds %d", ErrRawCountDrift, len(st.raws), live)
	}
	return s.safety.MarkVerified(ctx, st.modelID, st.reference, st.periodType)
}

func (s *Service) stepDelete(ctx context.Context, st *runState) error {
	deleted, err := s.raws.DeleteRange(ctx, st.modelID, st.from, st.to)
	if err != nil {
		return err
	}
	st.deleted = deleted
	return nil
}

func (s *Service) stepFlagBackup(ctx context.Context, st *runState) error {
	return s.safety.MarkDeleted(ctx, st.modelID, st.reference, st.periodType)
}

func (s *Service) verifyArchive(ctx context.Context, st *runState) error {
	report, err := s.archive.VerifyPeriod(ctx, st.modelID, st.reference, st.periodType)
	if err != nil {
		return err
	}
	if report.Count != len(st.records) {
		s.observeVerifyFailure()
		return fmt.Errorf("%w: expected %d rows, found %d", ErrArchiveCountMismatch, len(st.records), report.Count)
	}
	expected := make(map[string]bool, len(st.records))
	for _, rec := range st.records {
		expected[rec.PlatformID] = false
	}
	var extra []string
	for _, id := range report.PlatformIDs {
		if _, ok := expected[id]; !ok {
			extra = append(extra, id)
			continue
		}
		expected[id] = true
	}
	var missing []string
	for id, seen := range expected {
		if !seen {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		s.observeVerifyFailure()
		return fmt.Errorf("%w: missing %v, unexpected %v", ErrArchivePlatformMismatch, missing, extra)
	}
	if report.NullNumerics > 0 {
		s.observeVerifyFailure()
		return fmt.Errorf("%w: %d rows", ErrArchiveNullNumerics, report.NullNumerics)
	}
	return nil
}

func (s *Service) observeVerifyFailure() {
	if s.metrics != nil {
		s.metrics.VerificationFailure()
	}
}
