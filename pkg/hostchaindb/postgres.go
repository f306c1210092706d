// Copyright 2025 Certen Protocol
package hostchaindb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/burnchaindb"
	"github.com/certen/chain-coordinator/pkg/database"
	"github.com/certen/chain-coordinator/pkg/sortitiondb"
	"github.com/certen/chain-coordinator/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the Postgres implementation of Store. The actual
// block-execution step (interpreting a host block's transactions) is
// out of scope here — ProcessBlocks drives staging/acceptance ordering
// and defers to whatever executor Receipt a caller's Dispatcher wants
// attached; this store only ever produces an empty Receipt placeholder
// for an accepted block.
type PostgresStore struct {
	client *database.Client
}

// NewPostgresStore wraps an already-connected database.Client.
func NewPostgresStore(client *database.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// Migrate applies every embedded host-chain-store migration.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.client.MigrateUp(ctx, migrationsFS, "migrations")
}

// ProcessBlocks executes up to n staged blocks compatible with
// sortStore's canonical sortition, in arrival order.
func (s *PostgresStore) ProcessBlocks(ctx context.Context, burnStore burnchaindb.Store, sortStore sortitiondb.Store, n int, dispatcher Dispatcher) ([]types.BlockResult, error) {
	tip, err := sortStore.GetCanonicalTip(ctx)
	if err != nil {
		return nil, fmt.Errorf("process blocks: canonical tip: %w", err)
	}
	heaviest, err := s.FindCanonicalAffirmationMap(ctx, burnStore)
	if err != nil {
		return nil, fmt.Errorf("process blocks: heaviest affirmation map: %w", err)
	}

	rows, err := s.client.QueryContext(ctx, `
		SELECT consensus_hash, host_block_hash, parent_consensus_hash, burn_height
		FROM host_blocks
		WHERE status = 0
		ORDER BY arrived_at ASC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("process blocks: query staging: %w", err)
	}

	type staged struct {
		ch, parentCh types.ConsensusHash
		bhh          types.HostBlockHash
		burnHeight   uint64
	}
	var candidates []staged
	for rows.Next() {
		var ch, bhh, parentCh []byte
		var bh uint64
		if err := rows.Scan(&ch, &bhh, &parentCh, &bh); err != nil {
			rows.Close()
			return nil, fmt.Errorf("process blocks: scan: %w", err)
		}
		var c staged
		copy(c.ch[:], ch)
		copy(c.bhh[:], bhh)
		copy(c.parentCh[:], parentCh)
		c.burnHeight = bh
		candidates = append(candidates, c)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, rowsErr
	}

	var results []types.BlockResult
	for _, c := range candidates {
		if c.burnHeight > tip.BlockHeight {
			continue
		}
		am, err := s.FindStacksTipAffirmationMap(ctx, burnStore, sortStore, c.ch, c.bhh)
		if err != nil {
			return nil, fmt.Errorf("process blocks: affirmation map for %s: %w", c.bhh, err)
		}
		if !IsBlockCompatibleWithAffirmationMap(am, heaviest) {
			continue
		}

		result := types.BlockResult{
			ConsensusHash: c.ch,
			HostBlockHash: c.bhh,
			Valid:         true,
			Receipt:       &types.Receipt{HostBlockHash: c.bhh},
		}

		if _, err := s.client.ExecContext(ctx, `
			UPDATE host_blocks SET status = 1 WHERE consensus_hash = $1 AND host_block_hash = $2`,
			c.ch[:], c.bhh[:]); err != nil {
			return nil, fmt.Errorf("process blocks: mark accepted: %w", err)
		}

		if dispatcher != nil {
			if err := dispatcher.AnnounceBlock(ctx, result); err != nil {
				return nil, fmt.Errorf("process blocks: announce %s: %w", c.bhh, err)
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// IsBlockProcessed reports whether (ch, bhh) has reached HostBlockAccepted.
func (s *PostgresStore) IsBlockProcessed(ctx context.Context, ch types.ConsensusHash, bhh types.HostBlockHash) (bool, error) {
	var status int
	err := s.client.QueryRowContext(ctx, `
		SELECT status FROM host_blocks WHERE consensus_hash = $1 AND host_block_hash = $2`,
		ch[:], bhh[:]).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is block processed: %w", err)
	}
	return types.HostBlockStatus(status) == types.HostBlockAccepted, nil
}

// FindStacksTipAffirmationMap derives the affirmation map implied by
// the chain of host blocks ending at (ch, bhh).
func (s *PostgresStore) FindStacksTipAffirmationMap(ctx context.Context, burnStore burnchaindb.Store, sortStore sortitiondb.Store, ch types.ConsensusHash, bhh types.HostBlockHash) (affirmation.Map, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT entry FROM host_affirmation_entries
		WHERE consensus_hash = $1 AND host_block_hash = $2
		ORDER BY cycle ASC`, ch[:], bhh[:])
	if err != nil {
		return affirmation.Map{}, fmt.Errorf("find stacks tip affirmation map: %w", err)
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
	return affirmation.FromEntries(entries...), rows.Err()
}

// FindCanonicalAffirmationMap derives the affirmation map of the
// current canonical host-chain tip, falling back to the burnchain
// store's heaviest-observed map when no canonical affirmation entries
// are recorded yet.
func (s *PostgresStore) FindCanonicalAffirmationMap(ctx context.Context, burnStore burnchaindb.Store) (affirmation.Map, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT entry FROM canonical_affirmation_entries ORDER BY cycle ASC`)
	if err != nil {
		return affirmation.Map{}, fmt.Errorf("find canonical affirmation map: %w", err)
	}
	var entries []affirmation.Entry
	for rows.Next() {
		var e int16
		if err := rows.Scan(&e); err != nil {
			rows.Close()
			return affirmation.Map{}, err
		}
		entries = append(entries, affirmation.Entry(e))
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return affirmation.Map{}, rowsErr
	}
	if len(entries) > 0 {
		return affirmation.FromEntries(entries...), nil
	}
	return burnStore.GetHeaviestAnchorBlockAffirmationMap(ctx)
}

// ForgetOrphanedEpochData returns (ch, bhh) to staging if it is
// orphaned and deletes its memoized affirmation entries; a block that
// is not orphaned is left untouched.
func (s *PostgresStore) ForgetOrphanedEpochData(ctx context.Context, tx *database.Tx, ch types.ConsensusHash, bhh types.HostBlockHash) error {
	res, err := tx.Raw().ExecContext(ctx, `
		UPDATE host_blocks SET status = 0 WHERE consensus_hash = $1 AND host_block_hash = $2 AND status = 2`,
		ch[:], bhh[:])
	if err != nil {
		return fmt.Errorf("forget orphaned epoch data: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("forget orphaned epoch data: rows affected: %w", err)
	}
	if n == 0 {
		return nil
	}
	if _, err := tx.Raw().ExecContext(ctx, `
		DELETE FROM host_affirmation_entries WHERE consensus_hash = $1 AND host_block_hash = $2`,
		ch[:], bhh[:]); err != nil {
		return fmt.Errorf("forget orphaned epoch data: affirmation entries: %w", err)
	}
	return nil
}

// GetMaxHeaderHeight returns the highest burn height recorded in the
// header index.
func (s *PostgresStore) GetMaxHeaderHeight(ctx context.Context) (uint64, error) {
	var h sql.NullInt64
	err := s.client.QueryRowContext(ctx, `SELECT MAX(burn_height) FROM host_headers`).Scan(&h)
	if err != nil {
		return 0, fmt.Errorf("get max header height: %w", err)
	}
	return uint64(h.Int64), nil
}

// GetMaxAffirmationWeightAtHeight returns the heaviest memoized
// affirmation weight among headers at height h.
func (s *PostgresStore) GetMaxAffirmationWeightAtHeight(ctx context.Context, h uint64) (uint64, error) {
	var w sql.NullInt64
	err := s.client.QueryRowContext(ctx, `
		SELECT MAX(affirmation_weight) FROM host_headers WHERE burn_height = $1`, h).Scan(&w)
	if err != nil {
		return 0, fmt.Errorf("get max affirmation weight at height: %w", err)
	}
	return uint64(w.Int64), nil
}

// GetAllHeadersAtHeightAndWeight returns every header at height h
// carrying affirmation weight w.
func (s *PostgresStore) GetAllHeadersAtHeightAndWeight(ctx context.Context, h uint64, w uint64) ([]types.HeaderInfo, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT consensus_hash, host_block_hash, burn_height, affirmation_weight
		FROM host_headers WHERE burn_height = $1 AND affirmation_weight = $2`, h, w)
	if err != nil {
		return nil, fmt.Errorf("get all headers at height and weight: %w", err)
	}
	defer rows.Close()

	var out []types.HeaderInfo
	for rows.Next() {
		var hi types.HeaderInfo
		var ch, bhh []byte
		if err := rows.Scan(&ch, &bhh, &hi.BurnHeight, &hi.AffirmationWeight); err != nil {
			return nil, err
		}
		copy(hi.ConsensusHash[:], ch)
		copy(hi.HostBlockHash[:], bhh)
		out = append(out, hi)
	}
	return out, rows.Err()
}

// GetStagingBlockConsensusHashes returns every consensus hash under
// which bhh is staged.
func (s *PostgresStore) GetStagingBlockConsensusHashes(ctx context.Context, bhh types.HostBlockHash) ([]types.ConsensusHash, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT consensus_hash FROM host_blocks WHERE host_block_hash = $1`, bhh[:])
	if err != nil {
		return nil, fmt.Errorf("get staging block consensus hashes: %w", err)
	}
	defer rows.Close()

	var out []types.ConsensusHash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ch types.ConsensusHash
		copy(ch[:], raw)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// PreprocessAnchoredBlock validates and stages a raw host block.
func (s *PostgresStore) PreprocessAnchoredBlock(ctx context.Context, sortStore sortitiondb.Store, ch types.ConsensusHash, block types.RawHostBlock, parentCh types.ConsensusHash, now int64) (types.PreprocessResult, error) {
	if block.ConsensusHash != ch {
		return types.PreprocessResult{Accepted: false, Reason: "consensus hash mismatch"}, nil
	}

	var exists bool
	err := s.client.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM host_blocks WHERE consensus_hash = $1 AND host_block_hash = $2)`,
		ch[:], block.HostBlockHash[:]).Scan(&exists)
	if err != nil {
		return types.PreprocessResult{}, fmt.Errorf("preprocess anchored block: exists check: %w", err)
	}
	if exists {
		return types.PreprocessResult{Accepted: false, Reason: "already staged"}, nil
	}

	if _, err := s.client.ExecContext(ctx, `
		INSERT INTO host_blocks (consensus_hash, host_block_hash, parent_consensus_hash, burn_height, status, arrived_at, payload)
		VALUES ($1,$2,$3,$4,0,$5,$6)`,
		ch[:], block.HostBlockHash[:], parentCh[:], block.BurnHeight, now, block.Payload,
	); err != nil {
		return types.PreprocessResult{}, fmt.Errorf("preprocess anchored block: insert: %w", err)
	}
	return types.PreprocessResult{Accepted: true}, nil
}

// GetStagedBlocksInBurnHeightRange returns every host block recorded at
// a burn height within [from, to], staged or accepted, with its full
// raw payload so callers can re-submit it to PreprocessAnchoredBlock
// under a different consensus history.
func (s *PostgresStore) GetStagedBlocksInBurnHeightRange(ctx context.Context, from, to uint64) ([]types.RawHostBlock, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT consensus_hash, host_block_hash, parent_consensus_hash, burn_height, payload
		FROM host_blocks WHERE burn_height BETWEEN $1 AND $2`, from, to)
	if err != nil {
		return nil, fmt.Errorf("get staged blocks in burn height range: %w", err)
	}
	defer rows.Close()

	var out []types.RawHostBlock
	for rows.Next() {
		var rb types.RawHostBlock
		var ch, bhh, parentCh []byte
		if err := rows.Scan(&ch, &bhh, &parentCh, &rb.BurnHeight, &rb.Payload); err != nil {
			return nil, err
		}
		copy(rb.ConsensusHash[:], ch)
		copy(rb.HostBlockHash[:], bhh)
		copy(rb.ParentConsensusHash[:], parentCh)
		out = append(out, rb)
	}
	return out, rows.Err()
}

// BeginTx opens a transaction against the host-chain store's pool.
func (s *PostgresStore) BeginTx(ctx context.Context) (*database.Tx, error) {
	return s.client.BeginTx(ctx)
}

var _ Store = (*PostgresStore)(nil)
