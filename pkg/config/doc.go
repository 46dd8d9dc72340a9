/*
Package config loads the orchestrator process's YAML configuration:
server bind addresses, logging, and the per-collaborator settings for the
queue, scheduler, coordinator, artifact cache and worker factory.

Load reads a file and fills unset fields from Default(); Validate reports
the first missing required field as an apperr.Validation error.
*/
package config
