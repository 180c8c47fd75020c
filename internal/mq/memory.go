package mq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// MemoryBackend is an in-process Backend for local development and tests.
// Published messages are buffered per channel until a subscriber drains
// them; publishing to a full channel fails instead of blocking.
type MemoryBackend struct {
	mu       sync.Mutex
	channels map[string]chan Message
	nextID   int
	closed   bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{channels: make(map[string]chan Message)}
}

const memoryBuffer = 256

func (b *MemoryBackend) queue(channel string) chan Message {
	q, ok := b.channels[channel]
	if !ok {
		q = make(chan Message, memoryBuffer)
		b.channels[channel] = q
	}
	return q
}

func (b *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", errors.New("memory backend closed")
	}
	b.nextID++
	id := strconv.Itoa(b.nextID)
	q := b.queue(channel)
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case q <- Message{ID: id, Data: data, Attributes: attrs}:
		return id, nil
	default:
		return "", fmt.Errorf("memory channel %s is full", channel)
	}
}

// Subscribe delivers messages until ctx is done. A message whose handler
// fails is requeued.
func (b *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.mu.Lock()
	q := b.queue(channel)
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				select {
				case q <- msg:
				default:
				}
			}
		}
	}
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
