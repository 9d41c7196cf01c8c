package model

import "time"

// AnalysisConfig enumerates every recognized processing option. It is
// validated once at the submission boundary and read back by the worker
// from the persisted request snapshot.
type AnalysisConfig struct {
	Persona         Persona  `json:"persona,omitempty"`
	Language        Language `json:"language,omitempty"`
	GenerateQuizzes *bool    `json:"generateQuizzes,omitempty"`
	GenerateSummary *bool    `json:"generateSummary,omitempty"`
}

// ApplyDefaults fills unset options with their defaults.
func (c *AnalysisConfig) ApplyDefaults() {
	if c.Persona == "" {
		c.Persona = PersonaProfessor
	}
	if c.Language == "" {
		c.Language = LanguageEN
	}
	if c.GenerateQuizzes == nil {
		t := true
		c.GenerateQuizzes = &t
	}
	if c.GenerateSummary == nil {
		t := true
		c.GenerateSummary = &t
	}
}

// Entity is a named concept extracted from a section.
type Entity struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
}

// Lesson is one teachable takeaway extracted from a section.
type Lesson struct {
	Lesson          string   `json:"lesson"`
	SupportingQuote string   `json:"supportingQuote,omitempty"`
	Examples        []string `json:"examples,omitempty"`
}

// Section is one analyzed, time-bounded segment of the source content.
// StartTime and EndTime are clock strings, either "MM:SS" or "HH:MM:SS".
type Section struct {
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Quotes    []string `json:"quotes,omitempty"`
	Entities  []Entity `json:"entities,omitempty"`
	Lessons   []Lesson `json:"lessons,omitempty"`
}

// QuizGroup is a contiguous run of sections assigned together to form one
// quiz. Groups are numbered 1..N in section order and never mutated after
// planning.
type QuizGroup struct {
	QuizNumber           int     `json:"quizNumber"`
	SectionIndices       []int   `json:"sectionIndices"`
	SectionRange         string  `json:"sectionRange"`
	EstimatedQuestions   int     `json:"estimatedQuestions"`
	TotalConcepts        int     `json:"totalConcepts"`
	TotalDurationMinutes float64 `json:"totalDurationMinutes"`
}

// AnalysisResult is the terminal output persisted on a completed job.
type AnalysisResult struct {
	Persona      Persona     `json:"persona"`
	Summary      string      `json:"summary,omitempty"`
	Sections     []Section   `json:"sections"`
	Quizzes      []QuizGroup `json:"quizzes,omitempty"`
	TranscriptID string      `json:"transcriptId,omitempty"`
}

// TranscriptParagraph is one timed fragment of fetched transcript text.
type TranscriptParagraph struct {
	Offset int    `json:"offset"`
	Text   string `json:"text"`
}

// Transcript is the fetched transcript of one source, optionally cached.
type Transcript struct {
	TranscriptID   string                `json:"transcriptId"`
	Paragraphs     []TranscriptParagraph `json:"paragraphs"`
	CharacterCount int                   `json:"characterCount"`
	CreatedAt      time.Time             `json:"createdAt"`
	ExpiresAt      time.Time             `json:"expiresAt"`
}
