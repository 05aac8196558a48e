package detection

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/flowscout/internal/execshell"
	"github.com/temirov/flowscout/internal/snapshot"
	"github.com/temirov/flowscout/internal/snapshot/gitcli"
	"github.com/temirov/flowscout/internal/snapshot/gogit"
	"github.com/temirov/flowscout/internal/ui"
)

const (
	unsupportedSourceMessageConstant  = "unsupported snapshot source"
	unsupportedSourceTemplateConstant = "%w: %s"
	fixturePathMissingMessageConstant = "fixture source requires a fixture path"
)

var (
	// ErrUnsupportedSnapshotSource indicates a source other than git, gogit, or fixture.
	ErrUnsupportedSnapshotSource = errors.New(unsupportedSourceMessageConstant)
	// ErrFixturePathMissing indicates the fixture source was selected without a fixture file.
	ErrFixturePathMissing = errors.New(fixturePathMissingMessageConstant)
)

// ProviderSettings describes the snapshot backend to construct.
type ProviderSettings struct {
	Source              SnapshotSource
	RepositoryPath      string
	FixturePath         string
	HistoryDays         int
	MergeInferenceLimit int
	ReferenceTime       time.Time
}

// ProviderFactory constructs snapshot providers for a source.
type ProviderFactory struct {
	GitExecutor          gitcli.GitExecutor
	Logger               *zap.Logger
	HumanReadableLogging bool
}

// ParseSnapshotSource resolves a source name, defaulting to git when empty.
func ParseSnapshotSource(rawSource string) (SnapshotSource, error) {
	switch source := SnapshotSource(strings.ToLower(strings.TrimSpace(rawSource))); source {
	case "":
		return SnapshotSourceGit, nil
	case SnapshotSourceGit, SnapshotSourceGoGit, SnapshotSourceFixture:
		return source, nil
	default:
		return "", fmt.Errorf(unsupportedSourceTemplateConstant, ErrUnsupportedSnapshotSource, rawSource)
	}
}

// Build returns the provider selected by settings.
func (factory ProviderFactory) Build(settings ProviderSettings) (snapshot.Provider, error) {
	logger := factory.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch settings.Source {
	case SnapshotSourceFixture:
		if len(strings.TrimSpace(settings.FixturePath)) == 0 {
			return nil, ErrFixturePathMissing
		}
		referenceTime := settings.ReferenceTime
		return snapshot.NewFixtureProvider(settings.FixturePath, func() time.Time { return referenceTime }), nil
	case SnapshotSourceGoGit:
		return gogit.NewProvider(logger, gogit.Options{
			RepositoryPath: settings.RepositoryPath,
			HistoryDays:    settings.HistoryDays,
			ReferenceTime:  settings.ReferenceTime,
		}), nil
	case SnapshotSourceGit, "":
		executor := factory.GitExecutor
		if executor == nil {
			shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), factory.HumanReadableLogging)
			if executorError != nil {
				return nil, executorError
			}
			if factory.HumanReadableLogging {
				shellExecutor.WithEventObserver(ui.NewConsoleCommandEventLogger(logger))
			}
			executor = shellExecutor
		}
		gitProvider, providerError := gitcli.NewProvider(executor, logger, gitcli.Options{
			RepositoryPath:      settings.RepositoryPath,
			HistoryDays:         settings.HistoryDays,
			MergeInferenceLimit: settings.MergeInferenceLimit,
			ReferenceTime:       settings.ReferenceTime,
		})
		if providerError != nil {
			return nil, providerError
		}
		return gitProvider, nil
	default:
		return nil, fmt.Errorf(unsupportedSourceTemplateConstant, ErrUnsupportedSnapshotSource, settings.Source)
	}
}
