/*
Package config loads and validates Mend's YAML configuration.

Every tunable heuristic in the system lives here: cache similarity
threshold and EMA alpha, confidence threshold, worker timeouts, retry
policy, rollback retention, and the critical error kinds for the
auto-rollback policy. Defaults match the values the system shipped with,
but nothing outside this package hardcodes them.
*/
package config
