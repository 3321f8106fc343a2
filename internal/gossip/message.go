package gossip

import (
	"bytes"
	"encoding/gob"
)

// maxDatagram is the largest UDP payload we send or read.
const maxDatagram = 65507

// Envelope is the frame exchanged between overlay nodes. ID is unique per
// published message and drives duplicate suppression.
type Envelope struct {
	ID     string
	Topic  string
	Source string
	Data   []byte
}

// Received is a topic message handed to the application.
type Received struct {
	Source string
	Topic  string
	Data   []byte
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// seenCache remembers the most recent message ids in insertion order.
type seenCache struct {
	limit int
	order []string
	next  int
	ids   map[string]struct{}
}

func newSeenCache(limit int) *seenCache {
	return &seenCache{
		limit: limit,
		order: make([]string, 0, limit),
		ids:   make(map[string]struct{}, limit),
	}
}

// add records id and reports whether it was new.
func (c *seenCache) add(id string) bool {
	if _, ok := c.ids[id]; ok {
		return false
	}
	if len(c.order) < c.limit {
		c.order = append(c.order, id)
	} else {
		delete(c.ids, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % c.limit
	}
	c.ids[id] = struct{}{}
	return true
}
