package errors

var (
	// Domain errors, returned by services.
	ErrUserNotFound        = NotFound("user not found")
	ErrEmailTaken          = AlreadyExists("email is already registered")
	ErrInvalidCredentials  = Unauthorized("invalid email or password")
	ErrInvalidGender       = InvalidArg("gender must be male or female")
	ErrDateNotFound        = NotFound("date not found")
	ErrDateClosed          = FailedPrecondition("date is closed to new requests")
	ErrNotDateHost         = Forbidden("only the host can change this date")
	ErrHostOnlyMale        = Forbidden("only male profiles can host dates")
	ErrRequesterOnlyFemale = Forbidden("only female profiles can request to join dates")
	ErrSelfRequest         = InvalidArg("cannot request to join your own date")
	ErrHostMismatch        = InvalidArg("host does not match the date's host")
	ErrDuplicateRequest    = AlreadyExists("a request for this date is already pending or accepted")
	ErrRequestNotFound     = NotFound("request not found")
	ErrRequestNotPending   = FailedPrecondition("request is no longer pending")
	ErrNotRequestHost      = Forbidden("only the host can respond to this request")
	ErrNotRequestOwner     = Forbidden("only the requester can withdraw this request")
	ErrNotRequestMember    = Forbidden("not a participant of this request")
	ErrInvalidStatus       = InvalidArg("status must be accepted or rejected")
	ErrInvalidRole         = InvalidArg("role must be host or requester")
	ErrChatNotFound        = NotFound("chat not found")
	ErrChatExists          = AlreadyExists("a chat already exists for this request")
	ErrNotChatMember       = Forbidden("not a participant of this chat")
	ErrEmptyMessage        = InvalidArg("message text cannot be empty")
	ErrNotificationMissing = NotFound("notification not found")
	ErrUploadUnavailable   = New(CodeUnavailable, "uploads are not configured")
	ErrGoogleUnavailable   = New(CodeUnavailable, "google sign-in is not configured")
)

func ErrStore(op string, cause error) error {
	return Wrap(CodeInternal, op+" failed", cause)
}

func ErrValidation(cause error) error {
	return Wrap(CodeInvalidArgument, "invalid input", cause)
}
