package session

// NoticeCode is a typed code for user-facing session notifications.
type NoticeCode string

const (
	NoticeStartFailed       NoticeCode = "START_FAILED"
	NoticeContentLoadFailed NoticeCode = "CONTENT_LOAD_FAILED"
	NoticeNoAnswers         NoticeCode = "NO_ANSWERS"
	NoticeSubmitFailed      NoticeCode = "SUBMIT_FAILED"
	NoticeTimeUp            NoticeCode = "TIME_UP"
	NoticeSubmitted         NoticeCode = "SUBMITTED"
)

// Level classifies a notice for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one user-facing message. Everything the student sees goes
// through this single shape; nothing is surfaced via logs alone.
type Notice struct {
	Level   Level      `json:"level"`
	Code    NoticeCode `json:"code"`
	Message string     `json:"message"`
	// Detail carries the normalized upstream reason when one exists.
	Detail string `json:"detail,omitempty"`
}

// GetMessage returns the human-readable message for a notice code.
func GetMessage(code NoticeCode) string {
	switch code {
	case NoticeStartFailed:
		return "Gagal memulai sesi ujian. Silakan coba lagi."
	case NoticeContentLoadFailed:
		return "Gagal memuat soal. Silakan coba lagi."
	case NoticeNoAnswers:
		return "Jawab minimal satu pertanyaan sebelum mengumpulkan."
	case NoticeSubmitFailed:
		return "Gagal mengumpulkan jawaban. Jawaban Anda tersimpan, silakan coba lagi."
	case NoticeTimeUp:
		return "Waktu habis. Jawaban Anda sedang dikumpulkan."
	case NoticeSubmitted:
		return "Jawaban Anda telah dikumpulkan."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}

// Notifier is the external notification sink (toast collaborator). The
// engine's WebSocket stream subscribes through the orchestrator directly;
// hosts may inject an additional sink here.
type Notifier interface {
	Notify(n Notice)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}
