// Package preflight provides readiness checks for the directories and remote
// services covercat depends on.
//
// These checks run in two contexts:
//   - "covercat serve" calls RunAll at startup and logs every failed check.
//   - The CLI "covercat status" command prints the results next to the
//     record counts.
//
// Remote checks are skipped when their feature is not configured.
package preflight
