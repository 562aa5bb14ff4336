package domain

// ValidationCheck names one of the independent pool safety checks.
type ValidationCheck string

const (
	CheckBurned    ValidationCheck = "burned"
	CheckMutable   ValidationCheck = "mutable"
	CheckSocials   ValidationCheck = "socials"
	CheckRenounced ValidationCheck = "renounced"
	CheckFreezable ValidationCheck = "freezable"
	CheckLiquidity ValidationCheck = "liquidity"
	CheckMetrics   ValidationCheck = "metrics"
)

// ValidationResult is the outcome of a single pool check. Message carries a
// human-readable reason when the check failed.
type ValidationResult struct {
	Check   ValidationCheck
	Passed  bool
	Message string
}

// Pass returns a passing result for the given check
func Pass(check ValidationCheck) ValidationResult {
	return ValidationResult{Check: check, Passed: true}
}

// Fail returns a failing result with a human-readable reason
func Fail(check ValidationCheck, message string) ValidationResult {
	return ValidationResult{Check: check, Passed: false, Message: message}
}

// AllPassed reports whether every check in the list passed. An empty list is
// valid: it means no checks were requested.
func AllPassed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FailureReasons collects the messages of all failed checks so operators can
// see every violation at once rather than only the first.
func FailureReasons(results []ValidationResult) []string {
	var reasons []string
	for _, r := range results {
		if !r.Passed {
			reasons = append(reasons, r.Message)
		}
	}
	return reasons
}
