// Package metrics provides dynamo.Metric implementations that summarize a
// closed-loop run as it is recorded: control effort, tracking error,
// quaternion norm drift, mechanical energy and step-response figures.
//
// Metrics are stateful; the simulator resets them at the start of every
// run.
package metrics
