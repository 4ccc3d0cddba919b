package rating

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/angular/web-codegen-scorer/internal/llm"
	"github.com/angular/web-codegen-scorer/internal/result"
)

// Chatter is the subset of the llm client the judge needs.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

const (
	MinRating = 1
	MaxRating = 10
)

// Judge asks a model to rate generated code from MinRating to MaxRating.
type Judge struct {
	Client Chatter
	Model  string
	// Runs is how many times the model is asked; the median counts.
	Runs int
}

const maxCodeChars = 100_000

// JudgeRatingID identifies the model-rated code quality check.
const JudgeRatingID = "llm-code-quality"

func (j *Judge) Rating() Rating {
	return Rating{
		ID:        JudgeRatingID,
		Name:      "Code quality (LLM rated)",
		Category:  LowImpact,
		Reduction: 0.5,
		Rate:      j.rate,
	}
}

func (j *Judge) rate(ctx context.Context, in Input) (Outcome, error) {
	if len(in.Files) == 0 {
		return skipped("No files to rate"), nil
	}

	var code strings.Builder
	for _, f := range in.Files {
		fmt.Fprintf(&code, "--- %s ---\n%s\n", f.FilePath, f.Code)
	}
	src := code.String()
	if len(src) > maxCodeChars {
		src = src[:maxCodeChars] + fmt.Sprintf("\n\n... [code truncated from %d to %d chars] ...", len(src), maxCodeChars)
	}

	prompt := fmt.Sprintf(`You are a code review judge. Rate how well this generated web application fulfills the request and how maintainable its code is, on a scale of %d to %d.

Request:
%s

Code:
%s

Respond with ONLY a JSON object, e.g.:
{"rating": 7, "summary": "one sentence"}`, MinRating, MaxRating, in.Prompt.Prompt, src)

	runs := j.Runs
	if runs < 1 {
		runs = 1
	}
	var ratings []float64
	var summary string
	var usage result.Usage
	temp := 0.0
	for i := 0; i < runs; i++ {
		res, err := j.Client.Chat(ctx, llm.ChatRequest{
			Model:       j.Model,
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, err
			}
			log.Warn().Err(err).Int("attempt", i+1).Msg("code judge attempt failed")
			continue
		}
		usage = usage.Add(res.Usage)
		v, s, err := ParseJudgeResponse(res.Content)
		if err != nil {
			log.Warn().Err(err).Int("attempt", i+1).Msg("code judge answer unusable")
			continue
		}
		ratings = append(ratings, v)
		summary = s
	}
	if len(ratings) == 0 {
		out := skipped("Code judge produced no usable rating")
		out.Usage = usage
		return out, nil
	}

	median := MedianScore(ratings)
	out := executed(Coefficient(median, MaxRating), fmt.Sprintf("%.1f/%d: %s", median, MaxRating, summary))
	out.Usage = usage
	return out, nil
}

// Coefficient maps a rating to a score coefficient: 80% and above is
// perfect, 50% and above is good, anything else is poor.
func Coefficient(rating, maxRating float64) float64 {
	percent := rating / maxRating
	if percent >= 0.8 {
		return 1
	}
	if percent >= 0.5 {
		return 0.75
	}
	return 0.25
}

// ParseJudgeResponse extracts the rating from a model answer that may wrap
// the JSON in fences or prose.
func ParseJudgeResponse(content string) (float64, string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return 0, "", fmt.Errorf("parsing judge response: no JSON object in %q", content)
	}
	var payload struct {
		Rating  float64 `json:"rating"`
		Summary string  `json:"summary"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return 0, "", fmt.Errorf("parsing judge response: %w", err)
	}
	if payload.Rating < MinRating || payload.Rating > MaxRating {
		return 0, "", fmt.Errorf("parsing judge response: rating %v out of range", payload.Rating)
	}
	return payload.Rating, payload.Summary, nil
}

// MedianScore returns the median of scores.
func MedianScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
