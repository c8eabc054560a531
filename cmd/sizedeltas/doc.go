// Sizedeltas reports firmware memory-usage changes on pull requests.
//
// It aggregates the size reports produced by compiled-sketch workflow jobs,
// computes per-sketch flash/RAM deltas against the best available baseline,
// and publishes the result as a single idempotently-updated comment on the
// originating pull request.
//
// Usage:
//
//	sizedeltas report                 # local reports in a pull_request run,
//	                                  # artifact sweep everywhere else
//	sizedeltas report --source 'sketches-reports.*'
//	sizedeltas report --source reports/ --changes-only
//
// In a pull_request-triggered workflow the source is a directory of report
// files; in a scheduled workflow it is a regular expression matched against
// workflow artifact names.
package main
