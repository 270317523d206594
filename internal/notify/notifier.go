// Package notify provides an in-process bus for catalog change notifications.
// Snapshot caches subscribe to it to drop stale partitioning specs.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeType represents the kind of catalog change.
type ChangeType int

const (
	TableRegistered ChangeType = iota
	PartitionsAdded
	TableDropped
	SnapshotImported
)

func (c ChangeType) String() string {
	switch c {
	case TableRegistered:
		return "table_registered"
	case PartitionsAdded:
		return "partitions_added"
	case TableDropped:
		return "table_dropped"
	case SnapshotImported:
		return "snapshot_imported"
	}
	return "unknown"
}

// Notification describes one committed catalog change.
type Notification struct {
	Type      ChangeType
	TableID   string
	Version   int64
	Timestamp int64
}

// Notifier is a non-blocking pub/sub bus.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
}

// NewNotifier creates a new notifier instance.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		bufferSize: bufferSize,
	}
}

// Publish sends a notification to all matching subscribers.
// If a subscriber's channel is full, the notification is dropped for it.
func (n *Notifier) Publish(notif Notification) {
	if notif.Timestamp == 0 {
		notif.Timestamp = time.Now().UnixNano()
	}
	n.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscriber)
		if sub.matches(notif.TableID) {
			select {
			case sub.Ch <- notif:
			default:
			}
		}
		return true
	})
}

// Subscribe adds a subscriber that receives changes to the listed tables, or
// to every table when tables is empty.
func (n *Notifier) Subscribe(id string, tables []string) *Subscriber {
	sub := &Subscriber{
		ID:     id,
		Tables: tables,
		Ch:     make(chan Notification, n.bufferSize),
	}
	n.subscribers.Store(sub.ID, sub)
	return sub
}

// SubscribeAutoID is Subscribe with a generated ID.
func (n *Notifier) SubscribeAutoID(tables ...string) *Subscriber {
	return n.Subscribe("sub_"+uuid.NewString(), tables)
}

// Unsubscribe removes a subscriber from the notifier and closes their channel.
func (n *Notifier) Unsubscribe(subID string) {
	if value, ok := n.subscribers.LoadAndDelete(subID); ok {
		sub := value.(*Subscriber)
		close(sub.Ch)
	}
}

// Subscriber represents a notification subscriber.
type Subscriber struct {
	ID     string
	Tables []string
	Ch     chan Notification
}

func (s *Subscriber) matches(tableID string) bool {
	if len(s.Tables) == 0 {
		return true
	}
	for _, t := range s.Tables {
		if t == tableID {
			return true
		}
	}
	return false
}
