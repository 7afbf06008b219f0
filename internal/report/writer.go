package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"webswarm/internal/domain"
)

type Writer interface {
	WriteReport(ctx context.Context, r domain.Report) error
}

type FileWriter struct {
	Path string
}

// WriteReport stores the report as indented JSON. Non-ASCII text is kept
// as-is, and the file is replaced atomically.
func (w FileWriter) WriteReport(_ context.Context, r domain.Report) error {
	if strings.TrimSpace(w.Path) == "" {
		return errors.New("report path is empty")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmpName, w.Path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

func ReadFile(path string) (domain.Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Report{}, fmt.Errorf("read report: %w", err)
	}
	var r domain.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}

// WriteAll hands the report to every writer and joins their failures.
func WriteAll(ctx context.Context, r domain.Report, writers ...Writer) error {
	var errs []error
	for _, w := range writers {
		if w == nil {
			continue
		}
		if err := w.WriteReport(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Summary(r domain.Report, path string) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	b.WriteString("\n" + rule + "\n")
	if path != "" {
		fmt.Fprintf(&b, "Report saved to: %s\n", path)
	}
	if r.Mode == domain.RunModeExplore {
		fmt.Fprintf(&b, "Discovered features: %d\n", r.TotalFeatures)
		fmt.Fprintf(&b, "Tested features: %d\n", r.TestedFeatures)
	} else {
		fmt.Fprintf(&b, "Total tests: %d\n", r.TotalTests)
	}
	fmt.Fprintf(&b, "Passed: %d\n", r.PassedTests)
	fmt.Fprintf(&b, "Failed: %d\n", r.FailedTests)
	b.WriteString(rule + "\n")
	return b.String()
}
