//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StatusAssignment flags direct writes to a record's status outside the
// approval and record packages.
//
// Bad:
//
//	rec.Status = record.StatusApproved
//
// Good:
//
//	rec, ev, err := machine.Transition(rec, record.StatusApproved, actor)
//
// Transitions through the machine check the actor's role, stamp the reviewer
// fields and notify subscribers. A raw assignment skips all three.
func StatusAssignment(m dsl.Matcher) {
	m.Match(`$rec.Status = $status`).
		Where(m["rec"].Type.Is("record.Record") || m["rec"].Type.Is("*record.Record")).
		Where(!m.File().PkgPath.Matches(`/internal/(approval|record)$`)).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("change record status through approval.Machine.Transition, not by assignment")
}

// StatusConversion flags unchecked string to Status conversions.
//
// Bad:
//
//	status := record.Status(req.Status)
//
// Good:
//
//	status, err := record.ParseStatus(req.Status)
//
// ParseStatus folds case and accepts the legacy synonyms (accepted, verified,
// declined) older clients still send. The datastore reads rows it wrote
// itself and is exempt.
func StatusConversion(m dsl.Matcher) {
	m.Match(`record.Status($s)`).
		Where(m["s"].Type.Is("string") && !m["s"].Const).
		Where(!m.File().PkgPath.Matches(`/internal/(record|datastore)$`)).
		Report("use record.ParseStatus($s) to validate and canonicalize statuses")

	m.Match(`record.Kind($s)`).
		Where(m["s"].Type.Is("string") && !m["s"].Const).
		Where(!m.File().PkgPath.Matches(`/internal/(record|datastore)$`)).
		Report("use record.ParseKind($s) to validate kinds")
}

// StdErrors flags the standard errors package outside internal/errors.
//
// Errors built with errors.New(err).Component(...).Category(...).Build()
// carry the category the API maps to a status code and the context Sentry
// reports. internal/errors re-exports Is, As and Join.
func StdErrors(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m["msg"].Type.Is("string") && !m.File().PkgPath.Matches(`/internal/errors$`)).
		Where(m.File().Imports("errors")).
		Report("use internal/errors: errors.Newf($msg).Component(...).Category(...).Build()")
}

// PrintLogging flags fmt.Print and the standard log package in library code.
// Commands under cmd/ may print results to stdout.
func PrintLogging(m dsl.Matcher) {
	m.Match(
		`fmt.Println($*_)`,
		`fmt.Printf($*_)`,
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Fatalf($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`)).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use the module logger: logger.Global().Module(name)")
}

// DetachedContext flags context.Background() in request and sync paths,
// which drops the caller's deadline and cancellation.
//
// Sinks that must outlive the request use context.WithoutCancel(ctx).
func DetachedContext(m dsl.Matcher) {
	m.Match(`context.Background()`, `context.TODO()`).
		Where(m.File().PkgPath.Matches(`/internal/(api|lifecycle|reconcile|remote|datastore)$`)).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("derive from the caller's ctx; use context.WithoutCancel(ctx) for work that must finish")
}

// LocalTime flags time.Now() stored without UTC normalization in lifecycle code.
func LocalTime(m dsl.Matcher) {
	m.Match(`$x.CreatedAt = time.Now()`, `$x.ReviewedAt = time.Now()`).
		Report("store timestamps in UTC: time.Now().UTC()")
}
