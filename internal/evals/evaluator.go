// Package evals scores a model against JSONL golden datasets and writes
// JSON and markdown reports.
package evals

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/promptcraft-lab/promptops/internal/inference"
	"github.com/promptcraft-lab/promptops/internal/prompts"
	"github.com/promptcraft-lab/promptops/internal/provider"
)

const defaultConcurrency = 4

// Config carries the model and prompt settings for an evaluation run.
type Config struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	FewShot      []prompts.Example
	Concurrency  int
}

// Evaluator scores samples against a provider. Evaluation requests carry
// no chat history: every sample sees only the system prompt and the
// few-shot examples.
type Evaluator struct {
	provider provider.Provider
	cfg      Config
}

func New(p provider.Provider, cfg Config) *Evaluator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Evaluator{provider: p, cfg: cfg}
}

// Result is one scored sample.
type Result struct {
	ID                    string  `json:"id"`
	Category              string  `json:"category"`
	Metric                string  `json:"metric"`
	Score                 float64 `json:"score"`
	LatencyMS             float64 `json:"latency_ms"`
	EstimatedPromptTokens int     `json:"estimated_prompt_tokens"`
	ResponseLengthChars   int     `json:"response_length_chars"`
	Input                 string  `json:"input"`
	Output                string  `json:"output"`
}

// CategorySummary aggregates results sharing a category.
type CategorySummary struct {
	Samples      int     `json:"samples"`
	PassRate     float64 `json:"pass_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Summary is the full report payload.
type Summary struct {
	TotalSamples        int                        `json:"total_samples"`
	OverallPassRate     float64                    `json:"overall_pass_rate"`
	OverallAvgLatencyMS float64                    `json:"overall_avg_latency_ms"`
	ByCategory          map[string]CategorySummary `json:"by_category"`
	Results             []Result                   `json:"results"`

	categoryOrder []string
}

// ScoreSample runs one sample through the model and scores the output.
// A missing metric defaults to exact match; an unknown metric scores 0.
func (e *Evaluator) ScoreSample(ctx context.Context, sample Sample) (Result, error) {
	msgs := e.buildMessages(sample.Input)
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = m.Content
	}
	promptBlob := strings.Join(parts, "\n")

	start := time.Now()
	resp, err := e.provider.ChatCompletion(ctx, &inference.Request{
		Model:       e.cfg.Model,
		Messages:    msgs,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("score sample %s: %w", sample.ID, err)
	}
	latencyMS := round2(float64(time.Since(start)) / float64(time.Millisecond))
	output := resp.Content

	metric := sample.Metric
	if metric == "" {
		metric = MetricExactMatch
	}
	var score float64
	switch metric {
	case MetricExactMatch:
		score = ExactMatch(output, sample.Expected)
	case MetricKeywordCoverage:
		score = KeywordCoverage(output, sample.ExpectedKeywords)
	case MetricJSONValidity:
		score = JSONValidity(output, sample.ExpectedJSONKeys)
	case MetricSafetyRefusal:
		score = RefusalScore(output, sample.ExpectRefusal)
	}

	return Result{
		ID:                    sample.ID,
		Category:              sample.Category,
		Metric:                metric,
		Score:                 round4(score),
		LatencyMS:             latencyMS,
		EstimatedPromptTokens: inference.EstimateTokens(promptBlob),
		ResponseLengthChars:   utf8.RuneCountInString(output),
		Input:                 sample.Input,
		Output:                output,
	}, nil
}

// Run scores all samples, up to Concurrency at a time. Results keep the
// sample order. The first provider failure aborts the run.
func (e *Evaluator) Run(ctx context.Context, samples []Sample) ([]Result, error) {
	results := make([]Result, len(samples))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, sample := range samples {
		i, sample := i, sample
		g.Go(func() error {
			res, err := e.ScoreSample(ctx, sample)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Evaluator) buildMessages(input string) []inference.Message {
	msgs := make([]inference.Message, 0, 2*len(e.cfg.FewShot)+2)
	msgs = append(msgs, inference.Message{Role: inference.RoleSystem, Content: e.cfg.SystemPrompt})
	for _, ex := range e.cfg.FewShot {
		msgs = append(msgs,
			inference.Message{Role: inference.RoleUser, Content: ex.User},
			inference.Message{Role: inference.RoleAssistant, Content: ex.Assistant},
		)
	}
	return append(msgs, inference.Message{Role: inference.RoleUser, Content: input})
}

// Summarize aggregates results overall and per category.
func Summarize(results []Result) *Summary {
	byCat := make(map[string][]Result)
	var order []string
	for _, r := range results {
		if _, ok := byCat[r.Category]; !ok {
			order = append(order, r.Category)
		}
		byCat[r.Category] = append(byCat[r.Category], r)
	}

	cats := make(map[string]CategorySummary, len(byCat))
	for _, cat := range order {
		rows := byCat[cat]
		var scoreSum, latencySum float64
		for _, r := range rows {
			scoreSum += r.Score
			latencySum += r.LatencyMS
		}
		n := float64(len(rows))
		cats[cat] = CategorySummary{
			Samples:      len(rows),
			PassRate:     round4(scoreSum / n),
			AvgLatencyMS: round2(latencySum / n),
		}
	}

	var passRate, avgLatency float64
	if len(results) > 0 {
		var scoreSum, latencySum float64
		for _, r := range results {
			scoreSum += r.Score
			latencySum += r.LatencyMS
		}
		passRate = round4(scoreSum / float64(len(results)))
		avgLatency = round2(latencySum / float64(len(results)))
	}

	return &Summary{
		TotalSamples:        len(results),
		OverallPassRate:     passRate,
		OverallAvgLatencyMS: avgLatency,
		ByCategory:          cats,
		Results:             results,
		categoryOrder:       order,
	}
}

// WriteReport writes the summary as indented JSON and as a markdown
// digest with per-sample outputs truncated to 300 characters.
func WriteReport(summary *Summary, jsonPath, mdPath string) error {
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}

	lines := []string{
		"# Evaluation Report",
		"",
		"- Total samples: " + strconv.Itoa(summary.TotalSamples),
		"- Overall pass rate: " + formatFloat(summary.OverallPassRate),
		"- Overall avg latency (ms): " + formatFloat(summary.OverallAvgLatencyMS),
		"",
		"## Category summary",
		"",
	}
	for _, cat := range summary.categories() {
		stats := summary.ByCategory[cat]
		lines = append(lines, fmt.Sprintf("- %s: pass_rate=%s samples=%d avg_latency_ms=%s",
			cat, formatFloat(stats.PassRate), stats.Samples, formatFloat(stats.AvgLatencyMS)))
	}

	lines = append(lines, "", "## Sample outputs", "")
	for _, row := range summary.Results {
		lines = append(lines,
			fmt.Sprintf("### %s (%s)", row.ID, row.Category),
			"- metric: "+row.Metric,
			"- score: "+formatFloat(row.Score),
			"- latency_ms: "+formatFloat(row.LatencyMS),
			"- output: "+truncateRunes(row.Output, 300),
			"",
		)
	}

	if err := os.MkdirAll(filepath.Dir(mdPath), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(mdPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// categories returns the report order: first-seen during aggregation, or
// sorted names for summaries built elsewhere.
func (s *Summary) categories() []string {
	if len(s.categoryOrder) == len(s.ByCategory) {
		return s.categoryOrder
	}
	names := make([]string, 0, len(s.ByCategory))
	for name := range s.ByCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
