package domain

import "errors"

var (
	// ErrSubmissionNotFound is returned when a submission cannot be found by ID.
	ErrSubmissionNotFound = errors.New("submission not found")

	// ErrProblemNotFound is returned when the referenced problem does not exist.
	ErrProblemNotFound = errors.New("problem not found")

	// ErrInvalidLanguage is returned when an unsupported language is submitted.
	ErrInvalidLanguage = errors.New("invalid or unsupported language")

	// ErrEmptySourceCode is returned when source code is empty.
	ErrEmptySourceCode = errors.New("source code cannot be empty")

	// ErrMissingUserID is returned when a submission has no owner.
	ErrMissingUserID = errors.New("user id is required")

	// ErrMissingProblemID is returned when a submission references no problem.
	ErrMissingProblemID = errors.New("problem id is required")

	// ErrPayloadTooLarge is returned when the source code exceeds the size limit.
	ErrPayloadTooLarge = errors.New("source code payload exceeds maximum size (1MB)")

	// ErrNoTestCases is returned when a problem has nothing to judge against.
	ErrNoTestCases = errors.New("problem has no test cases")

	// ErrInvalidDifficulty is returned for an unknown difficulty tier.
	ErrInvalidDifficulty = errors.New("invalid difficulty")

	// ErrPublishFailed is returned when the message broker publish fails.
	ErrPublishFailed = errors.New("failed to publish job to message queue")

	// ErrProblemServiceUnavailable is returned when the problem lookup cannot be made.
	ErrProblemServiceUnavailable = errors.New("problem service is currently unavailable")

	// ErrInvalidStatus is returned for an unknown submission status.
	ErrInvalidStatus = errors.New("invalid submission status")

	// ErrInvalidTransition is returned when a status update would regress a submission.
	ErrInvalidTransition = errors.New("invalid submission status transition")

	// ErrVerdictMismatch is returned when a verdict map does not cover exactly the submission's test cases.
	ErrVerdictMismatch = errors.New("verdict map does not match submission test cases")

	// ErrInvalidScope is returned for an unknown leaderboard type.
	ErrInvalidScope = errors.New("invalid leaderboard type")

	// ErrUnsupportedLanguage is returned by the sandbox for a language outside its allow-list.
	ErrUnsupportedLanguage = errors.New("sandbox: unsupported language")

	// ErrIndeterminate is returned when the sandbox results cannot be matched to the test cases.
	ErrIndeterminate = errors.New("evaluation result is indeterminate")

	// ErrInvalidJob is returned for a job payload the worker cannot process.
	ErrInvalidJob = errors.New("invalid evaluation job")

	// ErrStatusConflict is returned by result delivery when the submission is already terminal.
	ErrStatusConflict = errors.New("submission status conflict")

	// ErrLockHeld is returned when another worker holds a live lease on the submission.
	ErrLockHeld = errors.New("submission is being evaluated by another worker")

	// ErrInvalidProblemData is returned when the problem service answers with a malformed problem.
	ErrInvalidProblemData = errors.New("problem service returned invalid problem data")

	// ErrDeliveryRejected is returned when the submission service refuses an update as malformed.
	ErrDeliveryRejected = errors.New("status update rejected")
)

// IsValidation reports whether err is a caller mistake in a submission request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidLanguage) ||
		errors.Is(err, ErrEmptySourceCode) ||
		errors.Is(err, ErrMissingUserID) ||
		errors.Is(err, ErrMissingProblemID) ||
		errors.Is(err, ErrNoTestCases)
}

// IsPermanent reports whether retrying a job that failed with err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrIndeterminate) ||
		errors.Is(err, ErrUnsupportedLanguage) ||
		errors.Is(err, ErrInvalidJob) ||
		errors.Is(err, ErrInvalidDifficulty) ||
		errors.Is(err, ErrDeliveryRejected)
}
