package launcher

// InProcessScheduler is the minimal Scheduler collaborator used when
// no external scheduling API is wired in: it pushes directly into the
// poller's own queues, the same durable path an external API would
// use. The full HTTP scheduling/cancellation/listing surface named in
// spec §1 as out of scope can replace this without the launcher
// noticing, since both satisfy the same Scheduler interface.
type InProcessScheduler struct {
	poller *Poller
}

// NewInProcessScheduler returns a Scheduler backed directly by poller.
func NewInProcessScheduler(poller *Poller) *InProcessScheduler {
	return &InProcessScheduler{poller: poller}
}

// Schedule enqueues msg into project's durable queue at msg's priority.
func (s *InProcessScheduler) Schedule(project string, msg CrawlMessage) error {
	return s.poller.Put(project, msg, msg.PriorityValue())
}
