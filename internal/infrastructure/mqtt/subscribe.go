package mqtt

import "fmt"

// Subscribe registers a handler for messages on the specified topic.
//
// Topics may use the + and # wildcards. Subscriptions are restored
// automatically after a reconnect.
//
// Handlers run on the client's delivery goroutine and must not block or
// publish; hand long-running work, and anything that publishes, to a
// goroutine of its own.
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.ProbeCommand(), 1,
//	    func(topic string, payload []byte) error {
//	        go func() {
//	            if err := reprobe(ctx); err != nil {
//	                log.Error("probe failed", "error", err)
//	            }
//	        }()
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	if !token.WaitTimeout(defaultPublishTimeout) {
		err = fmt.Errorf("timeout after %v", defaultPublishTimeout)
	} else {
		err = token.Error()
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
