// Package expression parses and evaluates the cron expressions used by crontimer.
//
// An expression is one or more comma-separated groups of whitespace-separated
// fields. Every group must have the same number of fields, and that count selects
// the grammar:
//
//	5 fields: minute hour day-of-month month day-of-week
//	6 fields: second minute hour day-of-month month day-of-week
//
// A comma only separates groups when it has whitespace on at least one side.
// A comma inside a field is an ordinary cron list:
//
//	"0,30 * * * *"          // one group, minutes 0 and 30
//	"0 9 * * 1, 0 17 * * 5" // two groups, 09:00 Mondays and 17:00 Fridays
//
// The year field is never supported.
//
// Field syntax (wildcards, values, lists, ranges, steps and names) is handled by an
// Evaluator. RobfigEvaluator, backed by github.com/robfig/cron/v3, is the default;
// CronexprEvaluator uses github.com/hashicorp/cronexpr and additionally accepts
// the L, W and # modifiers.
//
// Basic usage:
//
//	expr, err := expression.Parse("*/2 * * * * *")
//	if err != nil {
//		return err
//	}
//	next := expr.Next(time.Now())
//
// A parser bound to a time zone and evaluator:
//
//	p := expression.NewParser(expression.CronexprEvaluator{}, time.UTC)
//	expr, err := p.Parse("0 0 L * *") // midnight on the last day of each month
//
// Next returns the earliest occurrence strictly after the baseline, or the zero
// time when the expression can never fire again.
package expression
