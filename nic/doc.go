// Package nic manages the queue lifecycle of a CTPIO-class network adapter.
//
// An [Adapter] owns a fixed [Table] of hardware event queues (EVQs) and
// transmit queues (TXQs), sized from a [config.Class] at attach. EVQ ids
// [0,N) are backed by hardware; ids [N,VIs) are dummy queues that let VIs
// without transmit capability share the same id space.
//
// # Lifecycle
//
//	a, _ := nic.New(class, transport, dma)
//	_ = a.EnableEVQ(ctx, nic.EVQParams{EVQ: 0, Entries: 512, Region: region})
//	txq, _ := a.InitTXQ(ctx, 0, tag)
//	_ = a.FlushTXQ(ctx, 0, txq) // completion arrives via EventHandler
//	_ = a.DisableEVQ(ctx, 0)
//
// # Flush Completion
//
// A TXQ flush is accepted synchronously by the firmware and confirmed
// later by a control event on the owning EVQ's ring. Each EVQ counts its
// outstanding flushes and runs a scanner that searches the ring for a TX
// flush event, releases the flushed queue and calls
// [EventHandler.TxQueueFlushed]. The scanner retries every
// FlushRetryDelay until the count drains.
//
// DisableEVQ stores a negative sentinel in the count and joins the
// scanner before tearing the queue down, so no scan runs after it returns.
//
// # Concurrency
//
// Every EVQ and TXQ entry has its own lock, so operations on different
// queues proceed in parallel. Firmware calls are made without holding
// queue metadata locks.
package nic
