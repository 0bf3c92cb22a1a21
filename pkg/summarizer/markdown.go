package summarizer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MarkdownFormatter renders a Summary as Markdown.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator sets the function used to translate headings and labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = fn
	}
}

// WithVersion adds the tool version to the footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{
		translate: func(s string) string { return s },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", t("Compression Summary"))
	fmt.Fprintf(&sb, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&sb, "## %s\n\n", t("Settings"))
	fmt.Fprintf(&sb, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	fmt.Fprintf(&sb, "| %s | %s |\n", t("Preset"), orDash(s.Settings.Preset))
	fmt.Fprintf(&sb, "| %s | %s |\n", t("Runtime"), orDash(s.Settings.Runtime))
	fmt.Fprintf(&sb, "| %s | %s |\n", t("Decoder"), orDash(s.Settings.Decoder))
	fmt.Fprintf(&sb, "| %s | %.0f%% |\n", t("Minimum Savings"), s.Settings.MinSavings*100)
	if s.Settings.Workers > 0 {
		fmt.Fprintf(&sb, "| %s | %d |\n", t("Workers"), s.Settings.Workers)
	}
	sb.WriteString("\n")

	succeeded := 0
	for _, file := range s.Files {
		if file.Succeeded() {
			succeeded++
		}
	}
	fmt.Fprintf(&sb, "## %s\n\n", t("Files"))
	fmt.Fprintf(&sb, "%d / %d %s\n\n", succeeded, len(s.Files), t("compressed"))

	for _, file := range s.Files {
		f.formatFile(&sb, file)
	}

	sb.WriteString("---\n")
	if f.version != "" {
		fmt.Fprintf(&sb, "vidshrink %s\n", f.version)
	} else {
		sb.WriteString("vidshrink\n")
	}

	return sb.String()
}

func (f *MarkdownFormatter) formatFile(sb *strings.Builder, file FileSummary) {
	t := f.translate

	fmt.Fprintf(sb, "### %s\n\n", filepath.Base(file.Input))
	fmt.Fprintf(sb, "| %s | %s |\n|---|---|\n", t("Item"), t("Value"))
	fmt.Fprintf(sb, "| %s | %s |\n", t("Original Size"), formatBytes(file.OriginalSize))

	if !file.Succeeded() {
		fmt.Fprintf(sb, "| %s | %s |\n", t("Status"), t("Failed"))
		fmt.Fprintf(sb, "| %s | %s |\n", t("Error"), escapeCell(file.Error))
	} else {
		fmt.Fprintf(sb, "| %s | %s |\n", t("Output"), file.Output)
		fmt.Fprintf(sb, "| %s | %s |\n", t("Compressed Size"), formatBytes(file.OutputSize))
		fmt.Fprintf(sb, "| %s | %.2fx |\n", t("Compression Ratio"), file.CompressionRatio)
		fmt.Fprintf(sb, "| %s | %s (%d) |\n", t("Method"), file.Method, file.QualityScore)
		fmt.Fprintf(sb, "| %s | %s |\n", t("Format"), orDash(file.MIMEType))
		fmt.Fprintf(sb, "| %s | %dx%d |\n", t("Dimensions"), file.Width, file.Height)
		fmt.Fprintf(sb, "| %s | %s |\n", t("Audio Preserved"), f.yesNo(file.AudioPreserved))
		fmt.Fprintf(sb, "| %s | %s |\n", t("Smooth Playback"), f.yesNo(file.SmoothPlayback))
		fmt.Fprintf(sb, "| %s | %d ms |\n", t("Processing Time"), file.ProcessingTimeMs)
		if file.Thumbnail != "" {
			fmt.Fprintf(sb, "| %s | %s |\n", t("Thumbnail"), file.Thumbnail)
		}
	}
	sb.WriteString("\n")

	if len(file.Attempts) == 0 {
		return
	}

	fmt.Fprintf(sb, "| # | %s | %s | %s | %s | %s |\n", t("Method"), t("Target"), t("Outcome"), t("Size"), t("Elapsed"))
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, a := range file.Attempts {
		size := "-"
		if a.OutputBytes > 0 {
			size = formatBytes(int64(a.OutputBytes))
		}
		outcome := a.Outcome
		if a.Error != "" {
			outcome = fmt.Sprintf("%s: %s", a.Outcome, escapeCell(a.Error))
		}
		fmt.Fprintf(sb, "| %d | %s | %s | %s | %s | %d ms |\n",
			a.Index, a.Method, orDash(a.Target), outcome, size, a.Elapsed.Milliseconds())
	}
	sb.WriteString("\n")
}

func (f *MarkdownFormatter) yesNo(b bool) string {
	if b {
		return f.translate("Yes")
	}
	return f.translate("No")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

// formatBytes renders a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", float64(n)/float64(div), []string{"KB", "MB", "GB"}[exp])
}
