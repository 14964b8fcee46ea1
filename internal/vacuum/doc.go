// Package vacuum turns one multi-room robotic vacuum (the master) into a set
// of per-room virtual control points and batches their start requests.
//
// Start requests from any room of a master land in that master's pending
// batch and (re)arm a debounce timer. When the timer fires after a quiet
// window, the whole batch is drained and sent to the master as a single
// segment clean command. Stop and return-home clear the batch and reach the
// master immediately.
//
//	RoomControl.Start ─▶ ReadState (busy?) ─▶ Batch.Add ─▶ Scheduler.Arm
//	                                                          │ window
//	                                                          ▼
//	                                   CommandSender ◀── Dispatcher.Flush
//
// Each master has its own lane (one Batch and one Scheduler), so masters
// never interfere with each other.
//
// Dispatch is at most once: a failed or unacknowledged command is logged
// and recorded, and its rooms must be requested again.
package vacuum
