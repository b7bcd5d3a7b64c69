package sob

// Broker is the external message-bus collaborator (spec §1 "Out of
// scope: ... specific wire framing of the broker"). The bus consumes it
// as an abstract "message with headers and body" publish/subscribe
// surface; any concrete broker client (the teacher's own transport
// bundles, a NATS/Kafka/ZeroMQ client, ...) can implement it.
type Broker interface {
	// Publish sends body to queue as a monitor-class (best-effort,
	// never-retransmitted) message. Publish must not block indefinitely;
	// broker unavailability is non-fatal (spec §4.1 "Failure semantics")
	// and is reported back through err, which callers log and discard.
	Publish(queue string, body string) error

	// Subscribe registers h to be invoked for every message delivered to
	// queue. The returned func unsubscribes. Delivery order per
	// (subject, sender) is preserved by the broker; cross-subject order
	// is not.
	Subscribe(queue string, h func(body string)) (unsubscribe func(), err error)
}

// NopBroker drops every publish and never delivers anything; useful as
// a default when the bus is constructed before a real broker client is
// wired in, and in tests that only exercise local apply logic.
type NopBroker struct{}

func (NopBroker) Publish(string, string) error                       { return nil }
func (NopBroker) Subscribe(string, func(string)) (func(), error) { return func() {}, nil }
