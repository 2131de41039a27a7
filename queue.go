package pushsub

// outboundQueue is the FIFO of encoded frames waiting for an open transport.
// ServerClient guards it with its mutex.
type outboundQueue struct {
	frames [][]byte
}

func (q *outboundQueue) enqueue(frame []byte) {
	q.frames = append(q.frames, frame)
}

// drain hands the current epoch to the caller and starts a new, empty one.
// Frames enqueued while the caller iterates land in the new epoch.
func (q *outboundQueue) drain() [][]byte {
	frames := q.frames
	q.frames = nil
	return frames
}

// requeueFront puts frames that could not be written back ahead of anything
// enqueued since the drain.
func (q *outboundQueue) requeueFront(frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	merged := make([][]byte, 0, len(frames)+len(q.frames))
	merged = append(merged, frames...)
	q.frames = append(merged, q.frames...)
}

func (q *outboundQueue) len() int {
	return len(q.frames)
}

func (q *outboundQueue) clear() {
	q.frames = nil
}
