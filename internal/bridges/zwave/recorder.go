package zwave

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	zw "github.com/nerrad567/gray-logic-zwave/internal/zwave"
)

// Frame directions.
const (
	DirectionRx = "rx"
	DirectionTx = "tx"
)

// FrameRecord is one journaled frame.
type FrameRecord struct {
	ID           int64     `json:"id"`
	Direction    string    `json:"direction"`
	NodeID       byte      `json:"node_id"`
	CommandClass string    `json:"command_class"`
	Command      byte      `json:"command"`
	Frame        string    `json:"frame"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// NodeRecord summarises traffic seen from or sent to one node.
type NodeRecord struct {
	NodeID    byte      `json:"node_id"`
	LastClass string    `json:"last_command_class"`
	FramesRx  int64     `json:"frames_rx"`
	FramesTx  int64     `json:"frames_tx"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// FrameRecorder journals frames and maintains a per-node traffic table in
// SQLite. Tables come from the zwave migration.
//
// Thread Safety: All methods are safe for concurrent use.
type FrameRecorder struct {
	db     *sql.DB
	logger Logger

	frameInsertStmt *sql.Stmt
	nodeUpsertStmt  *sql.Stmt
	stmtMu          sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// NewFrameRecorder creates a recorder on db. Call Start before RecordFrame.
func NewFrameRecorder(db *sql.DB) *FrameRecorder {
	return &FrameRecorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *FrameRecorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the insert statements.
func (r *FrameRecorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameInsertStmt != nil {
		return nil
	}

	frameStmt, err := r.db.Prepare(`
		INSERT INTO zwave_frames (direction, node_id, command_class, command, frame, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing frame insert statement: %w", err)
	}

	nodeStmt, err := r.db.Prepare(`
		INSERT INTO zwave_nodes (node_id, last_command_class, frames_rx, frames_tx, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			last_command_class = excluded.last_command_class,
			frames_rx = frames_rx + excluded.frames_rx,
			frames_tx = frames_tx + excluded.frames_tx,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		frameStmt.Close()
		return fmt.Errorf("preparing node upsert statement: %w", err)
	}

	r.frameInsertStmt = frameStmt
	r.nodeUpsertStmt = nodeStmt
	r.log("frame recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *FrameRecorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.frameInsertStmt != nil {
		r.frameInsertStmt.Close()
		r.frameInsertStmt = nil
	}
	if r.nodeUpsertStmt != nil {
		r.nodeUpsertStmt.Close()
		r.nodeUpsertStmt = nil
	}

	r.log("frame recorder stopped")
}

// RecordFrame journals msg and bumps the node's counters.
// Received frames are stored as their raw bytes; sent frames as encoded.
func (r *FrameRecorder) RecordFrame(direction string, msg zw.Message) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.stmtMu.Lock()
	frameStmt := r.frameInsertStmt
	nodeStmt := r.nodeUpsertStmt
	r.stmtMu.Unlock()

	if frameStmt == nil || nodeStmt == nil {
		return
	}

	now := time.Now().UnixMilli()
	frame := msg.Raw
	if len(frame) == 0 {
		frame = msg.Encode()
	}
	class := msg.CommandClass.String()

	if _, err := frameStmt.Exec(direction, int(msg.NodeID), class, int(msg.Command), zw.FormatHex(frame), now); err != nil {
		r.logError("recording frame", err)
	}

	var rx, tx int
	if direction == DirectionTx {
		tx = 1
	} else {
		rx = 1
	}
	if _, err := nodeStmt.Exec(int(msg.NodeID), class, rx, tx, now, now); err != nil {
		r.logError("recording node", err)
	}
}

// RecentFrames returns up to limit frames, newest first.
func (r *FrameRecorder) RecentFrames(ctx context.Context, limit int) ([]FrameRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, direction, node_id, command_class, command, frame, recorded_at
		FROM zwave_frames
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying frames: %w", err)
	}
	defer rows.Close()

	frames := []FrameRecord{}
	for rows.Next() {
		var (
			f          FrameRecord
			node, cmd  int
			recordedAt int64
		)
		if err := rows.Scan(&f.ID, &f.Direction, &node, &f.CommandClass, &cmd, &f.Frame, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning frame: %w", err)
		}
		f.NodeID = byte(node)
		f.Command = byte(cmd)
		f.RecordedAt = time.UnixMilli(recordedAt).UTC()
		frames = append(frames, f)
	}

	return frames, rows.Err()
}

// Nodes returns every node seen, ordered by node ID.
func (r *FrameRecorder) Nodes(ctx context.Context) ([]NodeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, last_command_class, frames_rx, frames_tx, first_seen, last_seen
		FROM zwave_nodes
		ORDER BY node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	nodes := []NodeRecord{}
	for rows.Next() {
		var (
			n                   NodeRecord
			node                int
			firstSeen, lastSeen int64
		)
		if err := rows.Scan(&node, &n.LastClass, &n.FramesRx, &n.FramesTx, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.NodeID = byte(node)
		n.FirstSeen = time.UnixMilli(firstSeen).UTC()
		n.LastSeen = time.UnixMilli(lastSeen).UTC()
		nodes = append(nodes, n)
	}

	return nodes, rows.Err()
}

// NodeCount returns the number of nodes seen.
func (r *FrameRecorder) NodeCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zwave_nodes`).Scan(&count)
	return count, err
}

// FrameCount returns the number of journaled frames.
func (r *FrameRecorder) FrameCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM zwave_frames`).Scan(&count)
	return count, err
}

// Prune deletes journaled frames older than olderThan and returns the count removed.
func (r *FrameRecorder) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM zwave_frames WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning frames: %w", err)
	}
	return res.RowsAffected()
}

func (r *FrameRecorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *FrameRecorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
