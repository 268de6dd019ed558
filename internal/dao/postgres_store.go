package dao

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists the registry in PostgreSQL. The schema lives in
// migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (p *PostgresStore) CreateDAO(ctx context.Context, d *DAO) error {
	members, err := json.Marshal(d.Members)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO dao_daos (
			address, name, governance_type, token_address, members,
			voting_period, voting_delay, quorum_percentage, execution_delay,
			creator, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.Address, d.Name, d.GovernanceType, d.TokenAddress, members,
		d.Settings.VotingPeriod, d.Settings.VotingDelay, d.Settings.QuorumPercentage, d.Settings.ExecutionDelay,
		d.Creator, d.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresStore) GetDAO(ctx context.Context, address string) (*DAO, error) {
	d := &DAO{}
	var (
		token   sql.NullString
		members []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT address, name, governance_type, token_address, members,
		       voting_period, voting_delay, quorum_percentage, execution_delay,
		       creator, created_at
		FROM dao_daos WHERE address = $1`, address).Scan(
		&d.Address, &d.Name, &d.GovernanceType, &token, &members,
		&d.Settings.VotingPeriod, &d.Settings.VotingDelay, &d.Settings.QuorumPercentage, &d.Settings.ExecutionDelay,
		&d.Creator, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDAONotFound
	}
	if err != nil {
		return nil, err
	}
	if token.Valid {
		d.TokenAddress = &token.String
	}
	if err := json.Unmarshal(members, &d.Members); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *PostgresStore) CreateProposal(ctx context.Context, pr *Proposal) error {
	actions, err := json.Marshal(pr.ExecutionActions)
	if err != nil {
		return err
	}
	var snapshot sql.NullInt64
	if pr.SnapshotBlock != nil {
		snapshot = sql.NullInt64{Int64: int64(*pr.SnapshotBlock), Valid: true}
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO dao_proposals (
			dao_address, id, title, description, options,
			start_time, end_time, quorum, proposer, snapshot_block,
			execution_actions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		pr.DAOAddress, pr.ID, pr.Title, pr.Description, pq.Array(pr.Options),
		pr.StartTime, pr.EndTime, pr.Quorum, pr.Proposer, snapshot,
		actions, pr.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

const proposalColumns = `dao_address, id, title, description, options,
	start_time, end_time, quorum, proposer, snapshot_block,
	execution_actions, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(sc scanner) (*Proposal, error) {
	pr := &Proposal{}
	var (
		snapshot sql.NullInt64
		actions  []byte
	)
	err := sc.Scan(
		&pr.DAOAddress, &pr.ID, &pr.Title, &pr.Description, pq.Array(&pr.Options),
		&pr.StartTime, &pr.EndTime, &pr.Quorum, &pr.Proposer, &snapshot,
		&actions, &pr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if snapshot.Valid {
		block := uint64(snapshot.Int64)
		pr.SnapshotBlock = &block
	}
	if err := json.Unmarshal(actions, &pr.ExecutionActions); err != nil {
		return nil, err
	}
	return pr, nil
}

func (p *PostgresStore) GetProposal(ctx context.Context, daoAddress, id string) (*Proposal, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+proposalColumns+`
		FROM dao_proposals WHERE dao_address = $1 AND id = $2`, daoAddress, id)
	pr, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	return pr, err
}

func (p *PostgresStore) ListProposals(ctx context.Context, daoAddress string) ([]*Proposal, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+proposalColumns+`
		FROM dao_proposals WHERE dao_address = $1
		ORDER BY created_at DESC, id DESC`, daoAddress)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := []*Proposal{}
	for rows.Next() {
		pr, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AddVote(ctx context.Context, v *Vote) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dao_votes (dao_address, proposal_id, voter, option_index, weight, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.DAOAddress, v.ProposalID, v.Voter, v.OptionIndex, v.Weight, v.Reason, v.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyVoted
	}
	return err
}

func (p *PostgresStore) ListVotes(ctx context.Context, daoAddress, proposalID string) ([]*Vote, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT dao_address, proposal_id, voter, option_index, weight, reason, created_at
		FROM dao_votes WHERE dao_address = $1 AND proposal_id = $2
		ORDER BY created_at ASC`, daoAddress, proposalID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Vote
	for rows.Next() {
		v := &Vote{}
		if err := rows.Scan(&v.DAOAddress, &v.ProposalID, &v.Voter, &v.OptionIndex, &v.Weight, &v.Reason, &v.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
