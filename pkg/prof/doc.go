// Package prof records runtime profiles of a softnic process.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/softnicctl
//
// Without the tag, [Start] returns a session whose methods do nothing, so
// callers need no build constraints of their own.
//
// # Sessions
//
// A [Session] samples the CPU from [Start] until [Session.Stop] and writes
// a heap snapshot at Stop:
//
//	s, err := prof.Start(prof.Config{CPU: "cpu.prof", Heap: "heap.prof"})
//	if err != nil {
//		return err
//	}
//	defer s.Stop()
//
// Only one session may sample the CPU at a time; a second returns
// [ErrCPUProfileActive].
//
// # HTTP
//
// [Register] mounts the net/http/pprof handlers on an existing mux, such as
// the one serving adapter metrics. Set [Config.Contention] to make the
// block and mutex profiles meaningful while a session runs.
package prof
