// Package retention bounds registry growth.
//
// A Janitor runs on a cron schedule and removes completed and failed jobs
// whose terminal timestamp is older than a TTL. When the queue has an
// archive, jobs are written there first and only removed from the registry
// once the write succeeded, so GetJob keeps answering for them.
//
// Queued and processing jobs are never touched.
package retention
