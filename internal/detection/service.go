package detection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/classifier"
	"github.com/temirov/flowscout/internal/snapshot"
)

const (
	providerNotConfiguredMessageConstant    = "snapshot provider not configured"
	snapshotCollectionErrorTemplateConstant = "failed to collect repository history: %w"
	logMessageSnapshotCollectedConstant     = "Repository history collected"
	logMessageDetectionCompletedConstant    = "Workflow detection completed"
	logMessageMigrationDetectedConstant     = "Workflow migration detected"
	logFieldRepositoryConstant              = "repository"
	logFieldBranchesConstant                = "branches"
	logFieldCommitsConstant                 = "commits"
	logFieldTagsConstant                    = "tags"
	logFieldWorkflowConstant                = "workflow"
	logFieldConfidenceConstant              = "confidence"
	logFieldEvidenceConstant                = "evidence"
	logFieldRecentPatternConstant           = "recent_pattern"
	logFieldHistoricalPatternConstant       = "historical_pattern"
)

// ErrSnapshotProviderNotConfigured indicates a Service without a snapshot provider.
var ErrSnapshotProviderNotConfigured = errors.New(providerNotConfiguredMessageConstant)

// ServiceDependencies enumerates collaborators required by Service.
type ServiceDependencies struct {
	Provider   snapshot.Provider
	Classifier *classifier.Classifier
	Clock      Clock
	Logger     *zap.Logger
}

// Service runs workflow detection against a repository snapshot.
type Service struct {
	provider   snapshot.Provider
	classifier *classifier.Classifier
	clock      Clock
	logger     *zap.Logger
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Provider == nil {
		return nil, ErrSnapshotProviderNotConfigured
	}

	service := &Service{
		provider:   dependencies.Provider,
		classifier: dependencies.Classifier,
		clock:      dependencies.Clock,
		logger:     dependencies.Logger,
	}
	if service.classifier == nil {
		service.classifier = classifier.New()
	}
	if service.clock == nil {
		service.clock = SystemClock{}
	}
	if service.logger == nil {
		service.logger = zap.NewNop()
	}
	return service, nil
}

// Run collects a snapshot, classifies it, and checks for a workflow migration.
func (service *Service) Run(executionContext context.Context, options Options) (Report, error) {
	referenceTime := service.clock.Now()

	repositorySnapshot, snapshotError := service.provider.Snapshot(executionContext)
	if snapshotError != nil {
		return Report{}, fmt.Errorf(snapshotCollectionErrorTemplateConstant, snapshotError)
	}

	counts := repositorySnapshot.Counts()
	service.logger.Debug(
		logMessageSnapshotCollectedConstant,
		zap.String(logFieldRepositoryConstant, options.Repository),
		zap.Int(logFieldBranchesConstant, counts.Branches),
		zap.Int(logFieldCommitsConstant, counts.Commits),
		zap.Int(logFieldTagsConstant, counts.Tags),
	)

	migrationReferenceTime := referenceTime
	if capturedAt, anchored := repositorySnapshot.ReferenceTime(); anchored {
		migrationReferenceTime = capturedAt
	}

	recentWindowDays := options.RecentWindowDays
	if recentWindowDays <= 0 {
		recentWindowDays = classifier.DefaultRecentWindowDays
	}

	report := Report{
		Repository:       options.Repository,
		Classification:   service.classifier.Detect(repositorySnapshot, options.ConfidenceThreshold),
		Migration:        service.classifier.DetectMigration(repositorySnapshot, migrationReferenceTime, recentWindowDays),
		RecentWindowDays: recentWindowDays,
		Scores:           service.classifier.Score(repositorySnapshot),
		Counts:           counts,
		GeneratedAt:      referenceTime,
	}

	service.logger.Info(
		logMessageDetectionCompletedConstant,
		zap.String(logFieldRepositoryConstant, options.Repository),
		zap.String(logFieldWorkflowConstant, string(report.Classification.WorkflowType)),
		zap.Float64(logFieldConfidenceConstant, report.Classification.Confidence),
		zap.Strings(logFieldEvidenceConstant, report.Classification.Evidence),
	)
	if report.Migration.MigrationDetected {
		service.logger.Info(
			logMessageMigrationDetectedConstant,
			zap.String(logFieldRepositoryConstant, options.Repository),
			zap.Strings(logFieldRecentPatternConstant, report.Migration.RecentPattern),
			zap.Strings(logFieldHistoricalPatternConstant, report.Migration.HistoricalPattern),
		)
	}

	return report, nil
}
