// Copyright 2025 Certen Protocol
//
// Postgres-backed sortition store, adapted from the teacher's
// repository pattern (raw SQL, $N placeholders, one struct per table
// family) and wired onto the shared pkg/database.Client pool.
package sortitiondb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/database"
	"github.com/certen/chain-coordinator/pkg/rewardcycle"
	"github.com/certen/chain-coordinator/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the Postgres implementation of Store.
type PostgresStore struct {
	client *database.Client
}

// NewPostgresStore wraps an already-connected database.Client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// Migrate applies every embedded sortition-store migration.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.client.MigrateUp(ctx, migrationsFS, "migrations")
}

func (s *PostgresStore) scanSortition(row interface {
	Scan(dest ...interface{}) error
}) (types.Sortition, error) {
	var snap types.Sortition
	var sortID, parentID, burnHeader, consensusHash, winHostHash, winTxid []byte
	var poxBytes []byte
	var poxLength int
	var canonHostCH, canonHostHash []byte
	var canonHostHeight sql.NullInt64

	err := row.Scan(
		&sortID, &parentID, &burnHeader, &snap.BlockHeight, &consensusHash,
		&snap.WonSortition, &winHostHash, &winTxid, &poxBytes, &poxLength,
		&canonHostCH, &canonHostHash, &canonHostHeight,
		&snap.Valid, &snap.Processed,
	)
	if err == sql.ErrNoRows {
		return types.Sortition{}, database.ErrNotFound
	}
	if err != nil {
		return types.Sortition{}, err
	}

	copy(snap.SortitionId[:], sortID)
	copy(snap.ParentSortitionId[:], parentID)
	copy(snap.BurnHeaderHash[:], burnHeader)
	copy(snap.ConsensusHash[:], consensusHash)
	copy(snap.WinningHostBlockHash[:], winHostHash)
	copy(snap.WinningTxid[:], winTxid)
	snap.PoxId = types.PoxIdFromPackedBytes(poxBytes, poxLength)
	copy(snap.CanonicalHostTipConsensusHash[:], canonHostCH)
	copy(snap.CanonicalHostTipBlockHash[:], canonHostHash)
	snap.CanonicalHostTipHeight = uint64(canonHostHeight.Int64)
	return snap, nil
}

// qualified prefixes every column name in a comma-separated column list
// with alias, for reuse inside a recursive CTE's second arm.
func qualified(columns, alias string) string {
	parts := strings.Split(columns, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(out, ", ")
}

const sortitionColumns = `
	sortition_id, parent_sortition_id, burn_header_hash, block_height, consensus_hash,
	won_sortition, winning_host_block_hash, winning_txid, pox_id, pox_length,
	canonical_host_tip_consensus_hash, canonical_host_tip_block_hash, canonical_host_tip_height,
	valid, processed`

// GetCanonicalTip returns the current canonical sortition.
func (s *PostgresStore) GetCanonicalTip(ctx context.Context) (types.Sortition, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT `+sortitionColumns+`
		FROM sortitions
		WHERE valid = true
		ORDER BY block_height DESC
		LIMIT 1`)
	snap, err := s.scanSortition(row)
	if err != nil {
		return types.Sortition{}, fmt.Errorf("get canonical tip: %w", err)
	}
	return snap, nil
}

// GetSnapshotsAtHeight returns every sortition at a given burn height.
func (s *PostgresStore) GetSnapshotsAtHeight(ctx context.Context, height uint64) ([]types.Sortition, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT `+sortitionColumns+`
		FROM sortitions
		WHERE block_height = $1
		ORDER BY sortition_id`, height)
	if err != nil {
		return nil, fmt.Errorf("get snapshots at height: %w", err)
	}
	defer rows.Close()

	var out []types.Sortition
	for rows.Next() {
		snap, err := s.scanSortition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetAncestor walks sortID's ancestry back to height.
func (s *PostgresStore) GetAncestor(ctx context.Context, sortID types.SortitionId, height uint64) (types.Sortition, bool, error) {
	row := s.client.QueryRowContext(ctx, `
		WITH RECURSIVE ancestry AS (
			SELECT `+sortitionColumns+` FROM sortitions WHERE sortition_id = $1
			UNION ALL
			SELECT `+qualified(sortitionColumns, "p")+` FROM sortitions p
			JOIN ancestry a ON p.sortition_id = a.parent_sortition_id
			WHERE a.block_height > $2
		)
		SELECT `+sortitionColumns+` FROM ancestry WHERE block_height = $2 LIMIT 1`,
		sortID[:], height)
	snap, err := s.scanSortition(row)
	if err == database.ErrNotFound {
		return types.Sortition{}, false, nil
	}
	if err != nil {
		return types.Sortition{}, false, fmt.Errorf("get ancestor: %w", err)
	}
	return snap, true, nil
}

// GetSortitionIdsAtHeight returns sortition ids without hydrating full rows.
func (s *PostgresStore) GetSortitionIdsAtHeight(ctx context.Context, height uint64) ([]types.SortitionId, error) {
	rows, err := s.client.QueryContext(ctx, `SELECT sortition_id FROM sortitions WHERE block_height = $1`, height)
	if err != nil {
		return nil, fmt.Errorf("get sortition ids at height: %w", err)
	}
	defer rows.Close()

	var out []types.SortitionId
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var id types.SortitionId
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

// FindSortitionTipAffirmationMap loads the affirmation entries recorded
// for sortID's ancestry, most recent cycle last.
func (s *PostgresStore) FindSortitionTipAffirmationMap(ctx context.Context, sortID types.SortitionId) (affirmation.Map, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT entry FROM sortition_affirmation_entries
		WHERE sortition_id = $1
		ORDER BY cycle ASC`, sortID[:])
	if err != nil {
		return affirmation.Map{}, fmt.Errorf("find sortition tip affirmation map: %w", err)
	}
	defer rows.Close()

	var entries []affirmation.Entry
	for rows.Next() {
		var e int16
		if err := rows.Scan(&e); err != nil {
			return affirmation.Map{}, err
		}
		entries = append(entries, affirmation.Entry(e))
	}
	if err := rows.Err(); err != nil {
		return affirmation.Map{}, err
	}
	return affirmation.FromEntries(entries...), nil
}

// EvaluateSortition runs sortition evaluation over a burn header's
// operations, persisting the resulting row and invoking onCommit for
// every accepted leader commit.
func (s *PostgresStore) EvaluateSortition(ctx context.Context, header types.BurnHeader, ops []types.BurnchainOp, rci types.RewardCycleInfo, onCommit OnCommitFunc) (types.Sortition, error) {
	parent, err := s.GetCanonicalTip(ctx)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return types.Sortition{}, fmt.Errorf("evaluate sortition: load parent: %w", err)
	}

	var winner *types.BurnchainOp
	var commits []types.Commit
	for i := range ops {
		if ops[i].Kind != types.OpLeaderBlockCommit {
			continue
		}
		winner = &ops[i]
		commits = append(commits, types.Commit{
			Txid:                   ops[i].Txid,
			BurnHeaderHash:         header.BurnHeaderHash,
			CommittedHostBlockHash: ops[i].CommittedHostBlockHash,
			BurnFee:                ops[i].BurnFee,
			Recipients:             ops[i].Recipients,
		})
	}

	nextID := types.MakeNextSortitionId(parent.PoxId, header.BurnHeaderHash, rewardcycle.FingerprintTag(rci))

	snap := types.Sortition{
		SortitionId:       nextID,
		ParentSortitionId: parent.SortitionId,
		BurnHeaderHash:    header.BurnHeaderHash,
		BlockHeight:       header.BlockHeight,
		PoxId:             parent.PoxId,
		Valid:             true,
		Processed:         true,
	}
	if winner != nil {
		snap.WonSortition = true
		snap.WinningHostBlockHash = winner.CommittedHostBlockHash
		snap.WinningTxid = winner.Txid
	}

	if _, err := s.client.ExecContext(ctx, `
		INSERT INTO sortitions (`+sortitionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		snap.SortitionId[:], snap.ParentSortitionId[:], snap.BurnHeaderHash[:], snap.BlockHeight, snap.ConsensusHash[:],
		snap.WonSortition, snap.WinningHostBlockHash[:], snap.WinningTxid[:], snap.PoxId.Bytes(), snap.PoxId.Len(),
		snap.CanonicalHostTipConsensusHash[:], snap.CanonicalHostTipBlockHash[:], snap.CanonicalHostTipHeight,
		snap.Valid, snap.Processed,
	); err != nil {
		return types.Sortition{}, fmt.Errorf("evaluate sortition: insert: %w", err)
	}

	if onCommit != nil {
		for _, c := range commits {
			if err := onCommit(ctx, c); err != nil {
				return types.Sortition{}, fmt.Errorf("evaluate sortition: on_commit: %w", err)
			}
		}
	}

	return snap, nil
}

// MakeNextSortitionId derives the child sortition id.
func (s *PostgresStore) MakeNextSortitionId(ctx context.Context, parentPox types.PoxId, headerHash types.BurnHeaderHash, rci types.RewardCycleInfo) (types.SortitionId, error) {
	return types.MakeNextSortitionId(parentPox, headerHash, rewardcycle.FingerprintTag(rci)), nil
}

// InvalidateDescendantsWithClosures marks every descendant of burnHeader invalid.
func (s *PostgresStore) InvalidateDescendantsWithClosures(ctx context.Context, burnHeader types.BurnHeaderHash, perHeader PerHeaderFunc, onDone func(ctx context.Context) error) error {
	rows, err := s.client.QueryContext(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT `+sortitionColumns+` FROM sortitions WHERE burn_header_hash = $1
			UNION ALL
			SELECT `+qualified(sortitionColumns, "c")+` FROM sortitions c
			JOIN descendants d ON c.parent_sortition_id = d.sortition_id
		)
		SELECT `+sortitionColumns+` FROM descendants WHERE burn_header_hash != $1
		ORDER BY block_height ASC`, burnHeader[:])
	if err != nil {
		return fmt.Errorf("invalidate descendants: query: %w", err)
	}

	var toInvalidate []types.Sortition
	for rows.Next() {
		snap, scanErr := s.scanSortition(rows)
		if scanErr != nil {
			rows.Close()
			return fmt.Errorf("invalidate descendants: scan: %w", scanErr)
		}
		toInvalidate = append(toInvalidate, snap)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return rowsErr
	}

	for _, snap := range toInvalidate {
		if perHeader != nil {
			if err := perHeader(ctx, snap); err != nil {
				return fmt.Errorf("invalidate descendants: per_header(%s): %w", snap.SortitionId, err)
			}
		}
		if _, err := s.client.ExecContext(ctx, `UPDATE sortitions SET valid = false WHERE sortition_id = $1`, snap.SortitionId[:]); err != nil {
			return fmt.Errorf("invalidate descendants: update %s: %w", snap.SortitionId, err)
		}
	}

	if onDone != nil {
		if err := onDone(ctx); err != nil {
			return fmt.Errorf("invalidate descendants: on_done: %w", err)
		}
	}
	return nil
}

// RevalidateSnapshotWithBlock marks a sortition valid and refreshes its
// canonical host-tip memo.
func (s *PostgresStore) RevalidateSnapshotWithBlock(ctx context.Context, sortID types.SortitionId, ch types.ConsensusHash, bhh types.HostBlockHash, height uint64, knownFlag bool) error {
	_, err := s.client.ExecContext(ctx, `
		UPDATE sortitions
		SET valid = true, processed = $2,
			canonical_host_tip_consensus_hash = $3,
			canonical_host_tip_block_hash = $4,
			canonical_host_tip_height = $5,
			canonical_host_tip_dirty = false
		WHERE sortition_id = $1`,
		sortID[:], knownFlag, ch[:], bhh[:], height)
	if err != nil {
		return fmt.Errorf("revalidate snapshot: %w", err)
	}
	return nil
}

// FindSnapshotsWithDirtyCanonicalBlockPointers returns sortitions at or
// above height whose canonical-host-tip memo predates the most recent
// host-chain reorg.
func (s *PostgresStore) FindSnapshotsWithDirtyCanonicalBlockPointers(ctx context.Context, height uint64) ([]types.SortitionId, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT sortition_id FROM sortitions
		WHERE block_height >= $1 AND canonical_host_tip_dirty = true`, height)
	if err != nil {
		return nil, fmt.Errorf("find dirty snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.SortitionId
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var id types.SortitionId
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetPrepareEndFor returns the prepare-end sortition for hostBlock's cycle.
func (s *PostgresStore) GetPrepareEndFor(ctx context.Context, sortID types.SortitionId, hostBlock types.HostBlockHash) (types.Sortition, bool, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT `+sortitionColumns+` FROM sortitions s
		JOIN prepare_end_markers m ON m.sortition_id = s.sortition_id
		WHERE m.anchor_sortition_id = $1 AND m.host_block_hash = $2`,
		sortID[:], hostBlock[:])
	snap, err := s.scanSortition(row)
	if err == database.ErrNotFound {
		return types.Sortition{}, false, nil
	}
	if err != nil {
		return types.Sortition{}, false, fmt.Errorf("get prepare end for: %w", err)
	}
	return snap, true, nil
}

// GetPoxId returns the PoX bit-vector as of sortID.
func (s *PostgresStore) GetPoxId(ctx context.Context, sortID types.SortitionId) (types.PoxId, error) {
	var bits []byte
	var length int
	err := s.client.QueryRowContext(ctx, `SELECT pox_id, pox_length FROM sortitions WHERE sortition_id = $1`, sortID[:]).Scan(&bits, &length)
	if err == sql.ErrNoRows {
		return types.PoxId{}, database.ErrNotFound
	}
	if err != nil {
		return types.PoxId{}, fmt.Errorf("get pox id: %w", err)
	}
	return types.PoxIdFromPackedBytes(bits, length), nil
}

// ExtendPoxId appends bit as sortID's next recorded cycle.
func (s *PostgresStore) ExtendPoxId(ctx context.Context, sortID types.SortitionId, bit bool) error {
	current, err := s.GetPoxId(ctx, sortID)
	if err != nil {
		return fmt.Errorf("extend pox id: load current: %w", err)
	}
	extended := current.WithAppend(bit)
	if _, err := s.client.ExecContext(ctx, `
		UPDATE sortitions SET pox_id = $1, pox_length = $2 WHERE sortition_id = $3`,
		extended.Bytes(), extended.Len(), sortID[:],
	); err != nil {
		return fmt.Errorf("extend pox id: update: %w", err)
	}
	return nil
}

// GetLastEpochBoundaryCycle returns the most recent epoch-transition
// boundary the canonical chain has crossed.
func (s *PostgresStore) GetLastEpochBoundaryCycle(ctx context.Context) (uint64, error) {
	var cycle sql.NullInt64
	err := s.client.QueryRowContext(ctx, `SELECT MAX(cycle) FROM epoch_boundaries`).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("get last epoch boundary cycle: %w", err)
	}
	return uint64(cycle.Int64), nil
}

// IsStacksBlockPoxAnchor reports whether hostHash is the chosen PoX
// anchor as of sortID.
func (s *PostgresStore) IsStacksBlockPoxAnchor(ctx context.Context, hostHash types.HostBlockHash, sortID types.SortitionId) (types.HostBlockHash, bool, error) {
	var canonical []byte
	err := s.client.QueryRowContext(ctx, `
		SELECT canonical_host_block_hash FROM pox_anchors
		WHERE host_block_hash = $1 AND sortition_id = $2`,
		hostHash[:], sortID[:]).Scan(&canonical)
	if err == sql.ErrNoRows {
		return types.HostBlockHash{}, false, nil
	}
	if err != nil {
		return types.HostBlockHash{}, false, fmt.Errorf("is stacks block pox anchor: %w", err)
	}
	var out types.HostBlockHash
	copy(out[:], canonical)
	return out, true, nil
}

var _ Store = (*PostgresStore)(nil)
