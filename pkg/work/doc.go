/*
Package work defines the work package: one invocation of a job's user
script with one parameter bundle, the unit of scheduling and retry.

A package starts PENDING, cycles through cluster submissions (keeping the
full history of job ids it burned through), and ends SUCCEEDED or FAILED.
Resource fields (cpus, mem, time, partition) may grow across retries when
the scheduler reacts to timeouts or out-of-memory kills; the parameter
bundle itself is immutable.

The persisted form is Record, whose json keys are emitted sorted so that
work.json snapshots are byte-identical for unchanged state. Record also
backs the operator CLI, which loads persisted snapshots to answer status,
log and error-frequency queries without talking to the daemon.

PeakMem reads the memory-profiler artifact written next to a task's logs
and is used to fill the max_mem field of finished packages.
*/
package work
