package store

import "time"

// OutboxMessage is an outbound bus message waiting to be published.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	MsgKey    string
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Messages that failed this many times stay in the table but are no longer drained.
const MaxOutboxAttempts = 10

func (db *DB) EnqueueOutbox(topic string, payload []byte, msgType, key string) error {
	_, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type, msg_key, created_at) VALUES (?, ?, ?, ?, ?)`),
		topic, payload, msgType, key, formatTime(time.Now()))
	return err
}

// ListPendingOutbox returns unsent messages in insertion order.
func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, msg_type, msg_key, attempts, last_error, created_at FROM outbox WHERE sent_at IS NULL AND attempts < ? ORDER BY id LIMIT ?`),
		MaxOutboxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.MsgKey, &m.Attempts, &m.LastError, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=? WHERE id=?`), formatTime(time.Now()), id)
	return err
}

func (db *DB) FailOutbox(id int64, cause error) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET attempts=attempts+1, last_error=? WHERE id=?`), cause.Error(), id)
	return err
}

// CountPendingOutbox is reported on the diagnostics page.
func (db *DB) CountPendingOutbox() (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`)).Scan(&n)
	return n, err
}
