// Package scheduling groups the cron scheduling packages.
//
//   - expression: Parsing and evaluation of cron expressions
//   - crontimer: Polling timer that notifies subscribers when events are due
//
// Expressions:
//
// An expression is one or more groups of five or six cron fields separated by a
// comma with whitespace on at least one side. Six fields add a leading seconds
// field. All groups of one expression must have the same number of fields.
//
//	expr, err := expression.Parse("0 9 * * MON-FRI, 0 12 * * SAT")
//	next := expr.Next(time.Now()) // earliest occurrence over both groups
//
// Timer:
//
//	timer := crontimer.New[Job]()
//	timer.Subscribe(runJob)
//	timer.AddEvent(ctx, "*/30 * * * * *", Job{Name: "poll"})
//	timer.Start()
//	defer func() { <-timer.Dispose() }()
package scheduling
