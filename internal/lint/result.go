package lint

import "github.com/dbdeploy/dbdeploy/internal/changescript"

const maxStatementDisplay = 80

// Severity represents the danger level of a finding.
type Severity int

const (
	// Safe indicates no danger detected.
	Safe Severity = iota
	// Low indicates a minor concern.
	Low
	// Medium indicates moderate risk with workarounds available.
	Medium
	// High indicates a table lock or rewrite is likely.
	High
	// Critical indicates data loss or a script that will fail when applied.
	Critical
)

// String returns the uppercase label for the severity level.
func (s Severity) String() string {
	switch s {
	case Safe:
		return "SAFE"
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Finding is a single dangerous pattern detected in a change script.
type Finding struct {
	Rule       string   // Rule ID, e.g. "create-index-not-concurrent"
	Severity   Severity // Danger level
	Table      string   // Affected table name
	Statement  string   // Statement text, truncated for display
	Message    string   // What goes wrong
	Suggestion string   // Safe alternative
	LockType   string   // PostgreSQL lock acquired, e.g. "ACCESS EXCLUSIVE"
	StmtIndex  int      // 1-based statement index within the script
}

// Result holds all findings for one change script.
type Result struct {
	Script      *changescript.ChangeScript
	Findings    []Finding
	MaxSeverity Severity
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)

	if f.Severity > r.MaxSeverity {
		r.MaxSeverity = f.Severity
	}
}

// HasHighOrCritical reports whether any finding is High or Critical.
func (r *Result) HasHighOrCritical() bool {
	return r.MaxSeverity >= High
}

// TruncateSQL shortens sql to maxLen bytes for display.
func TruncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}

	return sql[:maxLen-3] + "..."
}
