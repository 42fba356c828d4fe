package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonDeviceUnavailable ReasonCode = "device_unavailable"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"
	ReasonSTTEngine  ReasonCode = "stt_engine"
	ReasonSTTTimeout ReasonCode = "stt_timeout"

	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSSend    ReasonCode = "tts_send"

	ReasonLLMGenerate ReasonCode = "llm_generate"
	ReasonLLMTimeout  ReasonCode = "llm_timeout"

	ReasonSearchUnavailable ReasonCode = "search_unavailable"
	ReasonSearchTimeout     ReasonCode = "search_timeout"
)
