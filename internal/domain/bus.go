package domain

// MessageBus routes messages between channels and the assistant.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(source string, handler func(OutboundMessage))
	Close()
}
