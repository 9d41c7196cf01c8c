package model

// Job status
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

var ValidJobStatuses = []JobStatus{
	JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed,
}

// Valid reports whether s is a recognized job status.
func (s JobStatus) Valid() bool {
	for _, v := range ValidJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state. Terminal jobs are never
// transitioned again; duplicate task deliveries rely on this.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Speech-to-text model choices
type SpeechModel string

const (
	SpeechModelUniversal SpeechModel = "universal"
	SpeechModelSlam1     SpeechModel = "slam-1"
	SpeechModelNano      SpeechModel = "nano"
)

var ValidSpeechModels = []SpeechModel{
	SpeechModelUniversal, SpeechModelSlam1, SpeechModelNano,
}

func (m SpeechModel) Valid() bool {
	for _, v := range ValidSpeechModels {
		if m == v {
			return true
		}
	}
	return false
}

// Analysis personas
type Persona string

const (
	PersonaProfessor Persona = "professor"
	PersonaCoach     Persona = "coach"
	PersonaExaminer  Persona = "examiner"
)

var ValidPersonas = []Persona{
	PersonaProfessor, PersonaCoach, PersonaExaminer,
}

func (p Persona) Valid() bool {
	for _, v := range ValidPersonas {
		if p == v {
			return true
		}
	}
	return false
}

// Language
type Language string

const (
	LanguageEN Language = "en"
	LanguageTR Language = "tr"
	LanguageFR Language = "fr"
)
