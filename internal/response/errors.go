package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Credentials ───────────────────────────────────────────────────
	ErrBearerRequired ErrCode = "BEARER_REQUIRED"

	// ─── Sessions ──────────────────────────────────────────────────────
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrWrongState       ErrCode = "WRONG_SESSION_STATE"
	ErrNoAnswers        ErrCode = "NO_ANSWERS"
	ErrSubmitInFlight   ErrCode = "SUBMIT_IN_FLIGHT"
	ErrStartFailed      ErrCode = "START_FAILED"
	ErrContentLoad      ErrCode = "CONTENT_LOAD_FAILED"
	ErrUnknownQuestion  ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswerOp  ErrCode = "INVALID_ANSWER_OPERATION"
	ErrSubmitFailed     ErrCode = "SUBMIT_FAILED"
	ErrUpstreamRejected ErrCode = "UPSTREAM_REJECTED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Credentials ───────────────────────────────────────────────────
	case ErrBearerRequired:
		return "Kredensial upstream diperlukan."

	// ─── Sessions ──────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Sesi tidak ditemukan."
	case ErrWrongState:
		return "Tindakan ini tidak diperbolehkan pada status sesi saat ini."
	case ErrNoAnswers:
		return "Jawab minimal satu pertanyaan sebelum mengumpulkan."
	case ErrSubmitInFlight:
		return "Pengumpulan jawaban sedang berlangsung."
	case ErrStartFailed:
		return "Gagal memulai sesi ujian."
	case ErrContentLoad:
		return "Gagal memuat soal."
	case ErrUnknownQuestion:
		return "Nomor pertanyaan tidak dikenal."
	case ErrInvalidAnswerOp:
		return "Operasi jawaban tidak valid untuk jenis pertanyaan ini."
	case ErrSubmitFailed:
		return "Gagal mengumpulkan jawaban."
	case ErrUpstreamRejected:
		return "Permintaan ditolak oleh server."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
