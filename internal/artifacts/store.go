// Package artifacts persists durable pipeline outputs: Markdown summaries for
// same-task citing papers and classification-only records for archived ones.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/citetrack/citation-service/internal/domain"
)

// ArtifactStore persists pipeline outputs. Writes are idempotent: re-running
// a record overwrites its artifact with identical content.
type ArtifactStore interface {
	// WriteSummary persists the Markdown summary for a same-task pair.
	WriteSummary(ctx context.Context, artifact domain.SummaryArtifact) error

	// WriteClassification persists the classification-only record for a pair
	// archived without a summary.
	WriteClassification(ctx context.Context, artifact domain.ClassificationArtifact) error
}

// FSStore writes artifacts under a base directory, one file per pair:
//
//	<base>/<tracked alias>/<classification>/<citing paper id>.md
type FSStore struct {
	baseDir string
}

// Compile-time check that FSStore implements ArtifactStore.
var _ ArtifactStore = (*FSStore)(nil)

// NewFSStore creates a filesystem artifact store rooted at baseDir.
func NewFSStore(baseDir string) *FSStore {
	return &FSStore{baseDir: baseDir}
}

// WriteSummary renders and writes the summary file for a same-task pair.
func (s *FSStore) WriteSummary(_ context.Context, artifact domain.SummaryArtifact) error {
	path := s.artifactPath(artifact.TrackedAlias, artifact.Classification, artifact.Key.CitingPaperID)

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(artifact.CitingTitle)
	sb.WriteString("\n\n")
	writeFrontMatter(&sb, []frontMatterField{
		{"tracked_paper", artifact.Key.TrackedPaperID},
		{"tracked_alias", artifact.TrackedAlias},
		{"citing_paper", artifact.Key.CitingPaperID},
		{"classification", string(artifact.Classification)},
		{"generated_at", artifact.GeneratedAt.Format("2006-01-02T15:04:05Z07:00")},
	})
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(artifact.Markdown))
	sb.WriteString("\n")

	return writeFileAtomic(path, []byte(sb.String()))
}

// WriteClassification writes the classification record for an archived pair.
func (s *FSStore) WriteClassification(_ context.Context, artifact domain.ClassificationArtifact) error {
	path := s.artifactPath(artifact.TrackedAlias, artifact.Classification, artifact.Key.CitingPaperID)

	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(artifact.CitingTitle)
	sb.WriteString("\n\n")
	writeFrontMatter(&sb, []frontMatterField{
		{"tracked_paper", artifact.Key.TrackedPaperID},
		{"tracked_alias", artifact.TrackedAlias},
		{"citing_paper", artifact.Key.CitingPaperID},
		{"classification", string(artifact.Classification)},
		{"reason", artifact.Reason},
		{"decided_at", artifact.DecidedAt.Format("2006-01-02T15:04:05Z07:00")},
	})

	return writeFileAtomic(path, []byte(sb.String()))
}

// artifactPath builds the artifact file path. The citing paper ID is
// sanitized; external IDs can contain path separators.
func (s *FSStore) artifactPath(alias string, classification domain.Disposition, citingPaperID string) string {
	return filepath.Join(s.baseDir, sanitize(alias), string(classification), sanitize(citingPaperID)+".md")
}

type frontMatterField struct {
	key   string
	value string
}

func writeFrontMatter(sb *strings.Builder, fields []frontMatterField) {
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(f.key)
		sb.WriteString(": ")
		sb.WriteString(f.value)
		sb.WriteString("\n")
	}
}

// writeFileAtomic writes content via a temp file and rename so a crashed
// writer never leaves a truncated artifact behind.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming artifact into place: %w", err)
	}
	return nil
}

// sanitize replaces path-hostile characters in a path component.
func sanitize(component string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"..", "_",
		" ", "-",
	)
	cleaned := replacer.Replace(strings.TrimSpace(component))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
