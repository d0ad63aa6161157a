// Package report renders a run's artifacts into a human-readable audit
// report: markdown for the CLI, HTML for the API.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"gosegment/domain/segment"
	"gosegment/engine"
)

// Renderer turns pipeline results into report documents.
type Renderer struct{}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderMarkdown builds the full audit report as markdown.
func (r *Renderer) RenderMarkdown(result *engine.Result) string {
	var b strings.Builder

	manifest := result.Manifest
	fmt.Fprintf(&b, "# Segmentation Run %s\n\n", manifest.RunID)
	fmt.Fprintf(&b, "- Seed: %d\n", manifest.Seed)
	fmt.Fprintf(&b, "- Rows: %d, Columns: %d\n", manifest.RowCount, manifest.ColumnCount)
	fmt.Fprintf(&b, "- Chosen k: %d\n", manifest.ChosenK)
	fmt.Fprintf(&b, "- Config fingerprint: `%s`\n", manifest.ConfigFingerprint)
	fmt.Fprintf(&b, "- Data fingerprint: `%s`\n", manifest.DataFingerprint)
	fmt.Fprintf(&b, "- Runtime: %dms\n\n", manifest.RuntimeMs)

	if len(manifest.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range manifest.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	r.writeMissingness(&b, result.Missingness)
	r.writePlan(&b, result.Plan)
	r.writeScaleParams(&b, result.ScaleParams)
	r.writeReduction(&b, result.Reduction)
	r.writeModel(&b, result.Model)
	r.writeProfiles(&b, result.Profiles)

	return b.String()
}

// RenderHTML converts the markdown report to a standalone HTML fragment.
func (r *Renderer) RenderHTML(result *engine.Result) []byte {
	md := r.RenderMarkdown(result)

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func (r *Renderer) writeMissingness(b *strings.Builder, report *segment.MissingnessReport) {
	if report == nil || len(report.Columns) == 0 {
		return
	}

	b.WriteString("## Missingness\n\n")
	b.WriteString("| Column | Missing % | Mechanism | p-value | Best MI | Driver |\n")
	b.WriteString("|--------|-----------|-----------|---------|---------|--------|\n")
	for _, col := range report.Columns {
		driver := col.BestMIColumn
		if driver == "" {
			driver = "-"
		}
		fmt.Fprintf(b, "| %s | %.1f%% | %s | %.4f | %.4f | %s |\n",
			col.Column, col.MissingFraction*100, col.Mechanism, col.PValue, col.BestMIScore, driver)
	}
	b.WriteString("\n")
}

func (r *Renderer) writePlan(b *strings.Builder, plan *segment.ImputationPlan) {
	if plan == nil || len(plan.Plans) == 0 {
		return
	}

	b.WriteString("## Imputation Plan\n\n")
	b.WriteString("| Column | Strategy | Fill Value | Note |\n")
	b.WriteString("|--------|----------|------------|------|\n")
	for _, colPlan := range plan.Plans {
		fill := "-"
		if colPlan.Strategy == segment.StrategyMedian || colPlan.Strategy == segment.StrategyMode {
			fill = fmt.Sprintf("%.4f", colPlan.FillValue)
		}
		note := colPlan.Reason
		if note == "" {
			note = "-"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", colPlan.Column, colPlan.Strategy, fill, note)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeScaleParams(b *strings.Builder, params *segment.ScaleParams) {
	if params == nil || len(params.Columns) == 0 {
		return
	}

	b.WriteString("## Standardization\n\n")
	b.WriteString("| Column | Mean | Std | Status |\n")
	b.WriteString("|--------|------|-----|--------|\n")
	for _, col := range params.Columns {
		if col.Excluded {
			fmt.Fprintf(b, "| %s | - | - | excluded: %s |\n", col.Column, col.Reason)
			continue
		}
		fmt.Fprintf(b, "| %s | %.4f | %.4f | scaled |\n", col.Column, col.Mean, col.Std)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeReduction(b *strings.Builder, reduction *segment.Reduction) {
	if reduction == nil {
		return
	}

	b.WriteString("## Dimensionality Reduction\n\n")
	fmt.Fprintf(b, "Retained %d components covering %.1f%% of variance (threshold %.0f%%).\n\n",
		len(reduction.Components), reduction.CumulativeEVR*100, reduction.Threshold*100)

	b.WriteString("| Component | Explained Variance |\n")
	b.WriteString("|-----------|--------------------|\n")
	for _, comp := range reduction.Components {
		fmt.Fprintf(b, "| PC%d | %.2f%% |\n", comp.Index+1, comp.ExplainedVarianceRatio*100)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeModel(b *strings.Builder, model *segment.ClusterModel) {
	if model == nil {
		return
	}

	b.WriteString("## Cluster Count Selection\n\n")
	fmt.Fprintf(b, "Chosen k=%d. %s\n\n", model.ChosenK, model.Consensus)

	b.WriteString("| k | Silhouette | WCSS | Calinski-Harabasz | Davies-Bouldin | Status |\n")
	b.WriteString("|---|------------|------|-------------------|----------------|--------|\n")
	for _, row := range model.Table {
		if row.Rejected {
			fmt.Fprintf(b, "| %d | - | - | - | - | rejected: %s |\n", row.K, row.RejectReason)
			continue
		}
		status := "scored"
		if row.K == model.ChosenK {
			status = "**chosen**"
		}
		fmt.Fprintf(b, "| %d | %.4f | %.2f | %.2f | %.4f | %s |\n",
			row.K, row.Silhouette, row.WCSS, row.CalinskiHarabasz, row.DaviesBouldin, status)
	}
	b.WriteString("\n")
}

func (r *Renderer) writeProfiles(b *strings.Builder, profiles []segment.ClusterProfile) {
	if len(profiles) == 0 {
		return
	}

	b.WriteString("## Cluster Profiles\n\n")
	for _, profile := range profiles {
		fmt.Fprintf(b, "### Cluster %d (%d customers)\n\n", profile.Cluster, profile.Size)
		b.WriteString("| Feature | Cluster Mean | Global Mean | Diff |\n")
		b.WriteString("|---------|--------------|-------------|------|\n")
		for _, feature := range profile.Features {
			fmt.Fprintf(b, "| %s | %.4f | %.4f | %+.1f%% %s |\n",
				feature.Feature, feature.ClusterMean, feature.GlobalMean, feature.PctDiff, feature.Direction)
		}
		b.WriteString("\n")
	}
}
