/*
Package log provides structured logging for Mend built on zerolog.

Init configures the global logger once at startup; packages then derive
child loggers with WithComponent, WithTaskID, WithWorker, or WithStrategy
to attach consistent fields. Console output is the default; JSON output is
available for machine consumption.
*/
package log
