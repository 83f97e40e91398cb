package cpu

// trapHandler is invoked by the trap vector for every trap taken while it is
// installed. It receives the frame the entry code spilled registers into and
// returns the frame that should be resumed.
var trapHandler func(*TrapFrame) *TrapFrame

// SetTrapHandler registers the function the assembly trap vector routes
// traps to. It must be called before the vector is installed into stvec.
func SetTrapHandler(handler func(*TrapFrame) *TrapFrame) {
	trapHandler = handler
}

// dispatchTrampoline is the Go-side landing pad for the assembly trap
// vector. It forwards the interrupted frame to the registered handler and
// resumes whichever frame the handler selects.
//
//go:nosplit
func dispatchTrampoline(frame *TrapFrame) {
	ResumeFrame(trapHandler(frame))
}
