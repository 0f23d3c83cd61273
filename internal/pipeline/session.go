package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Session owns the isolated working directory of one pipeline run. Every
// stage hand-off is a file inside this directory, so a stage's output is
// fully reconstructible from disk.
type Session struct {
	ID        string
	Dir       string
	ImagePath string
}

// NewSession creates the working directory for a run. When id is empty a
// timestamp-derived one is generated.
func NewSession(workDir, id, imagePath string) (*Session, error) {
	if id == "" {
		id = time.Now().UTC().Format("20060102-150405.000000000")
	}
	dir := filepath.Join(workDir, id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Session{ID: id, Dir: dir, ImagePath: imagePath}, nil
}

// Stage hand-off files, session-dir scoped.

func (s *Session) DetectionsPath() string { return filepath.Join(s.Dir, "detections.json") }
func (s *Session) AnnotatedPath() string  { return filepath.Join(s.Dir, "annotated.jpg") }
func (s *Session) ArtifactsDir() string   { return filepath.Join(s.Dir, "artifacts") }
func (s *Session) ManifestPath() string   { return filepath.Join(s.Dir, "artifacts.json") }
func (s *Session) ValidationPath() string { return filepath.Join(s.Dir, "validation.json") }
func (s *Session) ValidatedPath() string  { return filepath.Join(s.Dir, "validated.json") }
func (s *Session) MappedPath() string     { return filepath.Join(s.Dir, "mapped.jpg") }
func (s *Session) ReportPath() string     { return filepath.Join(s.Dir, "instance_report.json") }

// ArtifactPath returns the absolute path of a crop file named in the
// manifest.
func (s *Session) ArtifactPath(name string) string {
	return filepath.Join(s.ArtifactsDir(), name)
}

// Discard removes every artifact of the run and recreates the empty
// session directory. Used by reset.
func (s *Session) Discard() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("discard session %s: %w", s.ID, err)
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("recreate session dir: %w", err)
	}
	return nil
}

// DiscardStageOutput removes the partial output of a single failed stage so
// the preserved outputs of completed stages stay inspectable.
func (s *Session) DiscardStageOutput(stage Stage) error {
	var paths []string
	switch stage {
	case StageDetection:
		paths = []string{s.DetectionsPath(), s.AnnotatedPath()}
	case StageExtraction:
		paths = []string{s.ManifestPath(), s.ArtifactsDir()}
	case StageValidation:
		// Validation output is persisted incrementally and recorded
		// results survive a halt, nothing to discard.
		return nil
	case StageMapping:
		paths = []string{s.ValidatedPath(), s.MappedPath(), s.ReportPath()}
	default:
		return nil
	}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("discard %s output: %w", stage, err)
		}
	}
	return nil
}
