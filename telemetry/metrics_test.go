package telemetry

import (
	"testing"
	"time"
)

func TestHelpersSafeBeforeInit(t *testing.T) {
	// None of the helpers may panic when Init hasn't run (the common case in
	// unit tests of other packages).
	IncFrameReceived()
	IncFrameDropped()
	IncCommandFired()
	IncCommandSuppressed()
	IncReplySent()
	IncReplyStale()
	IncReconnect()
	IncAPIFetchFailure("live-detail")
	ObserveResolveDuration(time.Millisecond)
	UpdateSessionGauge(true)
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	if FramesReceived == nil || CommandsFired == nil || ResolveDuration == nil || SessionOpenGauge == nil {
		t.Fatal("metrics not registered after Init")
	}
	// Registered metrics must accept observations.
	IncFrameReceived()
	ObserveResolveDuration(time.Second)
	UpdateSessionGauge(false)
}
