package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/studyforge/api/internal/model"
	"github.com/studyforge/api/internal/quiz"
)

// LLMClient is the chat-completion collaborator behind section analysis.
type LLMClient interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// TranscriptSource fetches the transcript for a resolved audio URL.
type TranscriptSource interface {
	Fetch(ctx context.Context, audioURL string, speechModel model.SpeechModel) (*model.Transcript, error)
}

// AudioResolver turns a storage pointer into a fetchable audio URL.
type AudioResolver interface {
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// PersonaPipeline runs the substantive analysis for one job: resolve the
// source content, extract sections in the requested persona's voice, and
// plan quiz groups over them.
type PersonaPipeline struct {
	llm         LLMClient
	transcripts TranscriptSource
	audio       AudioResolver
}

func NewPersonaPipeline(llm LLMClient, transcripts TranscriptSource, audio AudioResolver) *PersonaPipeline {
	return &PersonaPipeline{
		llm:         llm,
		transcripts: transcripts,
		audio:       audio,
	}
}

// Run executes the pipeline against a persisted request snapshot.
func (p *PersonaPipeline) Run(ctx context.Context, req *model.AnalyzeRequest) (*model.AnalysisResult, error) {
	cfg := req.Config
	if cfg == nil {
		cfg = &model.AnalysisConfig{}
	}
	cfg.ApplyDefaults()

	text, transcriptID, err := p.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	sections, err := p.analyzeSections(ctx, cfg, req, text)
	if err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{
		Persona:      cfg.Persona,
		Sections:     sections,
		TranscriptID: transcriptID,
	}

	if *cfg.GenerateSummary {
		summary, err := p.summarize(ctx, cfg, sections)
		if err != nil {
			return nil, err
		}
		result.Summary = summary
	}

	if *cfg.GenerateQuizzes {
		result.Quizzes = quiz.Plan(sections)
	}

	return result, nil
}

// resolveContent produces the transcript text for whichever of the three
// input kinds the snapshot carries. Duration-only submissions yield no text;
// the section analysis sizes an outline from the duration instead.
func (p *PersonaPipeline) resolveContent(ctx context.Context, req *model.AnalyzeRequest) (string, string, error) {
	switch {
	case req.Transcript != "":
		return req.Transcript, "", nil

	case req.StoragePath != "":
		if p.audio == nil || p.transcripts == nil {
			return "", "", fmt.Errorf("storage-backed submissions are not configured")
		}
		audioURL, err := p.audio.GetSignedURL(ctx, req.StoragePath, time.Hour)
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve audio URL: %w", err)
		}
		speechModel := req.ModelChoice
		if speechModel == "" {
			speechModel = model.SpeechModelUniversal
		}
		transcript, err := p.transcripts.Fetch(ctx, audioURL, speechModel)
		if err != nil {
			return "", "", err
		}
		var sb strings.Builder
		for _, para := range transcript.Paragraphs {
			sb.WriteString(para.Text)
			sb.WriteString("\n")
		}
		return sb.String(), transcript.TranscriptID, nil

	case req.DurationSeconds != nil:
		return "", "", nil

	default:
		return "", "", fmt.Errorf("request snapshot carries no analyzable input")
	}
}

func (p *PersonaPipeline) analyzeSections(ctx context.Context, cfg *model.AnalysisConfig, req *model.AnalyzeRequest, text string) ([]model.Section, error) {
	if text == "" && req.DurationSeconds != nil {
		return outlineSections(*req.DurationSeconds), nil
	}

	if p.llm == nil || !p.llm.IsConfigured() {
		return mockSections(text), nil
	}

	systemPrompt := buildSystemPrompt(cfg.Persona, cfg.Language)
	userPrompt := buildSectionPrompt(text)

	raw, err := p.llm.ChatCompletion(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("section analysis failed: %w", err)
	}

	sections, err := parseSectionResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	return sections, nil
}

func (p *PersonaPipeline) summarize(ctx context.Context, cfg *model.AnalysisConfig, sections []model.Section) (string, error) {
	if p.llm == nil || !p.llm.IsConfigured() {
		return mockSummary(sections), nil
	}

	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString(s.Title)
		sb.WriteString(": ")
		sb.WriteString(s.Summary)
		sb.WriteString("\n")
	}

	raw, err := p.llm.ChatCompletion(ctx,
		buildSystemPrompt(cfg.Persona, cfg.Language),
		fmt.Sprintf("Write a short overall summary (3-5 sentences) of this content:\n\n%s\n\nOutput as JSON: {\"summary\": \"...\"}", sb.String()),
	)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	return result.Summary, nil
}

func personaVoice(p model.Persona) string {
	switch p {
	case model.PersonaCoach:
		return "an encouraging learning coach who highlights practical takeaways"
	case model.PersonaExaminer:
		return "a rigorous examiner who focuses on testable facts and precise definitions"
	default:
		return "a university professor who explains concepts clearly and cites the source"
	}
}

func buildSystemPrompt(persona model.Persona, language model.Language) string {
	langName := "English"
	switch language {
	case model.LanguageTR:
		langName = "Turkish"
	case model.LanguageFR:
		langName = "French"
	}

	return fmt.Sprintf(`You are %s. You analyze spoken-word transcripts and produce structured study material in %s.
Always output your response as valid JSON in the exact format requested.
Do not include any text outside the JSON structure.`, personaVoice(persona), langName)
}

func buildSectionPrompt(text string) string {
	return fmt.Sprintf(`Divide the following transcript into coherent, time-bounded sections.
For each section provide: startTime and endTime ("MM:SS" or "HH:MM:SS"), a title, a summary,
notable quotes, named entities with explanations, and lessons (each with a supporting quote and examples).

Transcript:
%s

Output as JSON: {"sections": [{"startTime":"00:00","endTime":"05:00","title":"...","summary":"...","quotes":["..."],"entities":[{"name":"...","explanation":"..."}],"lessons":[{"lesson":"...","supportingQuote":"...","examples":["..."]}]}]}`, text)
}

func parseSectionResponse(raw string) ([]model.Section, error) {
	var result struct {
		Sections []model.Section `json:"sections"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(result.Sections) == 0 {
		return nil, fmt.Errorf("no sections in response")
	}
	return result.Sections, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// Mock implementations for development/testing

func mockSections(text string) []model.Section {
	words := strings.Fields(text)
	count := 3
	if len(words) < 60 {
		count = 1
	}

	sections := make([]model.Section, 0, count)
	chunk := (len(words) + count - 1) / count
	for i := 0; i < count; i++ {
		lo := i * chunk
		hi := lo + chunk
		if hi > len(words) {
			hi = len(words)
		}
		summary := strings.Join(words[lo:hi], " ")
		if len(summary) > 200 {
			summary = summary[:200]
		}

		sections = append(sections, model.Section{
			StartTime: fmt.Sprintf("%02d:00", i*10),
			EndTime:   fmt.Sprintf("%02d:00", (i+1)*10),
			Title:     fmt.Sprintf("Part %d", i+1),
			Summary:   summary,
			Lessons: []model.Lesson{
				{Lesson: fmt.Sprintf("Key idea of part %d", i+1)},
				{Lesson: fmt.Sprintf("Secondary idea of part %d", i+1)},
			},
		})
	}
	return sections
}

// outlineSections sizes an empty outline from a duration-only submission,
// one section per ten minutes of content, at most six.
func outlineSections(durationSeconds int) []model.Section {
	count := durationSeconds / 600
	if count < 1 {
		count = 1
	}
	if count > 6 {
		count = 6
	}

	segment := durationSeconds / count
	sections := make([]model.Section, 0, count)
	for i := 0; i < count; i++ {
		sections = append(sections, model.Section{
			StartTime: formatClock(i * segment),
			EndTime:   formatClock((i + 1) * segment),
			Title:     fmt.Sprintf("Segment %d", i+1),
			Summary:   "Outline segment pending transcript analysis",
			Lessons: []model.Lesson{
				{Lesson: fmt.Sprintf("Planned topic for segment %d", i+1)},
			},
		})
	}
	return sections
}

func mockSummary(sections []model.Section) string {
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
	}
	return fmt.Sprintf("The content covers %d sections: %s.", len(sections), strings.Join(titles, ", "))
}

func formatClock(seconds int) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
