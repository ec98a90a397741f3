package protocol

import "time"

// GenerateRequest asks the speech service to turn text into one WAV file.
type GenerateRequest struct {
	JobID string `json:"job_id,omitempty"`
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
	GapMS int    `json:"gap_ms,omitempty"`
}

// Job states carried in status messages.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// JobStatus reports generation progress and outcome.
type JobStatus struct {
	JobID         string    `json:"job_id"`
	State         string    `json:"state"`
	SegmentsDone  int       `json:"segments_done"`
	SegmentsTotal int       `json:"segments_total"`
	OutputPath    string    `json:"output_path,omitempty"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PreviewRequest asks for a short spoken sample of a voice.
type PreviewRequest struct {
	Voice string `json:"voice,omitempty"`
}

// PreviewReply carries the sample as a complete WAV container.
type PreviewReply struct {
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	WAVBase64  string `json:"wav_base64,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	SubjectGenerateRequest = "speech.request"
	SubjectPreviewRequest  = "speech.preview"
	SubjectJobStatus       = "speech.job.status"
	SubjectJobDone         = "speech.job.done"
)
