// Copyright 2025 Certen Protocol
package burnchaindb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/certen/chain-coordinator/pkg/affirmation"
	"github.com/certen/chain-coordinator/pkg/database"
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

// Migrate applies every embedded burnchain-store migration.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.client.MigrateUp(ctx, migrationsFS, "migrations")
}

const burnHeaderColumns = `burn_header_hash, parent_burn_header_hash, block_height, block_timestamp`

func scanBurnHeader(row interface{ Scan(dest ...interface{}) error }) (types.BurnHeader, error) {
	var hash, parentHash []byte
	var h types.BurnHeader
	err := row.Scan(&hash, &parentHash, &h.BlockHeight, &h.Timestamp)
	if err == sql.ErrNoRows {
		return types.BurnHeader{}, database.ErrNotFound
	}
	if err != nil {
		return types.BurnHeader{}, err
	}
	copy(h.BurnHeaderHash[:], hash)
	copy(h.ParentBurnHeaderHash[:], parentHash)
	return h, nil
}

// GetCanonicalTip returns the heaviest burn header known.
func (s *PostgresStore) GetCanonicalTip(ctx context.Context) (types.BurnHeader, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT `+burnHeaderColumns+` FROM burn_headers
		ORDER BY block_height DESC LIMIT 1`)
	h, err := scanBurnHeader(row)
	if err != nil {
		return types.BurnHeader{}, fmt.Errorf("get canonical tip: %w", err)
	}
	return h, nil
}

// GetBlock returns the full block for a burn hash.
func (s *PostgresStore) GetBlock(ctx context.Context, hash types.BurnHeaderHash) (types.BurnchainBlockData, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT `+burnHeaderColumns+` FROM burn_headers WHERE burn_header_hash = $1`, hash[:])
	header, err := scanBurnHeader(row)
	if err != nil {
		return types.BurnchainBlockData{}, fmt.Errorf("get block: header: %w", err)
	}

	rows, err := s.client.QueryContext(ctx, `
		SELECT kind, txid, sender, committed_host_block_hash, burn_fee, key_block_backptr, payload
		FROM burnchain_ops WHERE burn_header_hash = $1 ORDER BY txid`, hash[:])
	if err != nil {
		return types.BurnchainBlockData{}, fmt.Errorf("get block: ops: %w", err)
	}
	defer rows.Close()

	var ops []types.BurnchainOp
	for rows.Next() {
		var op types.BurnchainOp
		var txid, committedHost []byte
		if err := rows.Scan(&op.Kind, &txid, &op.Sender, &committedHost, &op.BurnFee, &op.KeyBlockBackptr, &op.Payload); err != nil {
			return types.BurnchainBlockData{}, fmt.Errorf("get block: scan op: %w", err)
		}
		copy(op.Txid[:], txid)
		copy(op.CommittedHostBlockHash[:], committedHost)

		recipRows, err := s.client.QueryContext(ctx, `
			SELECT address, amount FROM burnchain_op_recipients WHERE txid = $1 ORDER BY idx`, txid)
		if err != nil {
			return types.BurnchainBlockData{}, fmt.Errorf("get block: recipients: %w", err)
		}
		for recipRows.Next() {
			var r types.PayoutRecipient
			if err := recipRows.Scan(&r.Address, &r.Amount); err != nil {
				recipRows.Close()
				return types.BurnchainBlockData{}, fmt.Errorf("get block: scan recipient: %w", err)
			}
			op.Recipients = append(op.Recipients, r)
		}
		recipRows.Close()

		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return types.BurnchainBlockData{}, err
	}

	return types.BurnchainBlockData{Header: header, Ops: ops}, nil
}

// GetBurnchainHeader returns the header at a given height, if any.
func (s *PostgresStore) GetBurnchainHeader(ctx context.Context, height uint64) (types.BurnHeader, bool, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT `+burnHeaderColumns+` FROM burn_headers WHERE block_height = $1`, height)
	h, err := scanBurnHeader(row)
	if err == database.ErrNotFound {
		return types.BurnHeader{}, false, nil
	}
	if err != nil {
		return types.BurnHeader{}, false, fmt.Errorf("get burnchain header: %w", err)
	}
	return h, true, nil
}

// GetHeaviestAnchorBlockAffirmationMap returns the commit-weighted
// affirmation map for the heaviest observed anchor-block chain.
func (s *PostgresStore) GetHeaviestAnchorBlockAffirmationMap(ctx context.Context) (affirmation.Map, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT entry FROM heaviest_affirmation_entries ORDER BY cycle ASC`)
	if err != nil {
		return affirmation.Map{}, fmt.Errorf("get heaviest anchor block affirmation map: %w", err)
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

// IsAnchorBlock reports whether a commit is a recognized PoX anchor candidate.
func (s *PostgresStore) IsAnchorBlock(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (bool, error) {
	var exists bool
	err := s.client.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM anchor_block_candidates WHERE burn_header_hash = $1 AND txid = $2)`,
		burnHash[:], txid[:]).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is anchor block: %w", err)
	}
	return exists, nil
}

// GetBlockCommit looks up a single leader block-commit.
func (s *PostgresStore) GetBlockCommit(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (types.Commit, error) {
	row := s.client.QueryRowContext(ctx, `
		SELECT txid, burn_header_hash, committed_host_block_hash, burn_fee
		FROM burnchain_ops WHERE burn_header_hash = $1 AND txid = $2 AND kind = 0`,
		burnHash[:], txid[:])

	var c types.Commit
	var rowTxid, rowBurnHash, rowHost []byte
	err := row.Scan(&rowTxid, &rowBurnHash, &rowHost, &c.BurnFee)
	if err == sql.ErrNoRows {
		return types.Commit{}, database.ErrNotFound
	}
	if err != nil {
		return types.Commit{}, fmt.Errorf("get block commit: %w", err)
	}
	copy(c.Txid[:], rowTxid)
	copy(c.BurnHeaderHash[:], rowBurnHash)
	copy(c.CommittedHostBlockHash[:], rowHost)

	recipRows, err := s.client.QueryContext(ctx, `
		SELECT address, amount FROM burnchain_op_recipients WHERE txid = $1 ORDER BY idx`, txid[:])
	if err != nil {
		return types.Commit{}, fmt.Errorf("get block commit: recipients: %w", err)
	}
	defer recipRows.Close()
	for recipRows.Next() {
		var r types.PayoutRecipient
		if err := recipRows.Scan(&r.Address, &r.Amount); err != nil {
			return types.Commit{}, err
		}
		c.Recipients = append(c.Recipients, r)
	}
	return c, recipRows.Err()
}

// GetCommitMetadata returns the derived reward-cycle/prepare-phase/
// confirmation metadata tracked for a commit.
func (s *PostgresStore) GetCommitMetadata(ctx context.Context, burnHash types.BurnHeaderHash, txid types.Txid) (types.CommitMeta, error) {
	var meta types.CommitMeta
	err := s.client.QueryRowContext(ctx, `
		SELECT reward_cycle, in_prepare_phase, confirmations
		FROM commit_metadata WHERE burn_header_hash = $1 AND txid = $2`,
		burnHash[:], txid[:]).Scan(&meta.RewardCycle, &meta.InPreparePhase, &meta.Confirmations)
	if err == sql.ErrNoRows {
		return types.CommitMeta{}, database.ErrNotFound
	}
	if err != nil {
		return types.CommitMeta{}, fmt.Errorf("get commit metadata: %w", err)
	}
	return meta, nil
}

// PreparePhaseCommits returns every leader block-commit recorded
// within reward cycle cycle's prepare phase.
func (s *PostgresStore) PreparePhaseCommits(ctx context.Context, cycle uint64) ([]types.PrepareCommit, error) {
	rows, err := s.client.QueryContext(ctx, `
		SELECT o.txid, o.committed_host_block_hash, o.burn_fee, m.confirmations
		FROM burnchain_ops o
		JOIN commit_metadata m ON m.burn_header_hash = o.burn_header_hash AND m.txid = o.txid
		WHERE o.kind = 0 AND m.reward_cycle = $1 AND m.in_prepare_phase = true
		ORDER BY o.txid`, cycle)
	if err != nil {
		return nil, fmt.Errorf("prepare phase commits: %w", err)
	}
	defer rows.Close()

	var out []types.PrepareCommit
	for rows.Next() {
		var c types.PrepareCommit
		var txid, host []byte
		if err := rows.Scan(&txid, &host, &c.BurnFee, &c.Confirmations); err != nil {
			return nil, fmt.Errorf("prepare phase commits: scan: %w", err)
		}
		copy(c.Txid[:], txid)
		copy(c.CommittedHostBlockHash[:], host)
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
