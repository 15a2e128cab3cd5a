package speech

// ASRRequest is one buffered transcription job.
type ASRRequest struct {
	SessionID string `json:"sessionId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`   // ogg, mp3, wav, pcm
	Codec     string `json:"codec"`    // opus, raw
	Language  string `json:"language"` // pt-BR, en-US, etc.
}
