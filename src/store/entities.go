package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertProposal creates the proposal row or corrects its author.
func (s *Store) UpsertProposal(ctx context.Context, id int64, authorID string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"author_id"}),
	}).Create(&Proposal{ID: id, AuthorID: authorID}).Error
	if err != nil {
		return fmt.Errorf("store: upsert proposal %d: %w", id, err)
	}
	return nil
}

// UpsertRFP creates the RFP row or corrects its author.
func (s *Store) UpsertRFP(ctx context.Context, id int64, authorID string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"author_id"}),
	}).Create(&RFP{ID: id, AuthorID: authorID}).Error
	if err != nil {
		return fmt.Errorf("store: upsert rfp %d: %w", id, err)
	}
	return nil
}

// UpsertProposalSnapshot writes snap, replacing any row with the same
// (proposal_id, ts).
func (s *Store) UpsertProposalSnapshot(ctx context.Context, snap *ProposalSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "ts"}},
		UpdateAll: true,
	}).Create(snap).Error
	if err != nil {
		return fmt.Errorf("store: upsert proposal snapshot %d@%d: %w", snap.ProposalID, snap.Ts, err)
	}
	return nil
}

// UpsertRFPSnapshot writes snap, replacing any row with the same (rfp_id, ts).
func (s *Store) UpsertRFPSnapshot(ctx context.Context, snap *RFPSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rfp_id"}, {Name: "ts"}},
		UpdateAll: true,
	}).Create(snap).Error
	if err != nil {
		return fmt.Errorf("store: upsert rfp snapshot %d@%d: %w", snap.RFPID, snap.Ts, err)
	}
	return nil
}

// LatestProposalSnapshot returns the snapshot with the greatest ts.
func (s *Store) LatestProposalSnapshot(ctx context.Context, proposalID int64) (*ProposalSnapshot, error) {
	var snap ProposalSnapshot
	err := s.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("ts DESC").
		First(&snap).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &snap, nil
}

// ProposalSnapshotBefore returns the latest snapshot strictly older than ts.
func (s *Store) ProposalSnapshotBefore(ctx context.Context, proposalID, ts int64) (*ProposalSnapshot, error) {
	var snap ProposalSnapshot
	err := s.db.WithContext(ctx).
		Where("proposal_id = ? AND ts < ?", proposalID, ts).
		Order("ts DESC").
		First(&snap).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &snap, nil
}

// LatestRFPSnapshot returns the snapshot with the greatest ts.
func (s *Store) LatestRFPSnapshot(ctx context.Context, rfpID int64) (*RFPSnapshot, error) {
	var snap RFPSnapshot
	err := s.db.WithContext(ctx).
		Where("rfp_id = ?", rfpID).
		Order("ts DESC").
		First(&snap).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &snap, nil
}

// RFPSnapshotAsOf returns the latest snapshot with ts <= the given ts.
func (s *Store) RFPSnapshotAsOf(ctx context.Context, rfpID, ts int64) (*RFPSnapshot, error) {
	var snap RFPSnapshot
	err := s.db.WithContext(ctx).
		Where("rfp_id = ? AND ts <= ?", rfpID, ts).
		Order("ts DESC").
		First(&snap).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &snap, nil
}

// ProposalSnapshots returns every snapshot of a proposal, newest first.
func (s *Store) ProposalSnapshots(ctx context.Context, proposalID int64) ([]ProposalSnapshot, error) {
	var snaps []ProposalSnapshot
	err := s.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("ts DESC").
		Find(&snaps).Error
	return snaps, err
}

// RFPSnapshots returns every snapshot of an RFP, newest first.
func (s *Store) RFPSnapshots(ctx context.Context, rfpID int64) ([]RFPSnapshot, error) {
	var snaps []RFPSnapshot
	err := s.db.WithContext(ctx).
		Where("rfp_id = ?", rfpID).
		Order("ts DESC").
		Find(&snaps).Error
	return snaps, err
}

func (s *Store) DeleteProposalSnapshots(ctx context.Context, proposalID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("proposal_id = ?", proposalID).Delete(&ProposalSnapshot{})
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteRFPSnapshots(ctx context.Context, rfpID int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("rfp_id = ?", rfpID).Delete(&RFPSnapshot{})
	return res.RowsAffected, res.Error
}

// DeleteAllSnapshots wipes both snapshot tables; entities stay.
func (s *Store) DeleteAllSnapshots(ctx context.Context) (int64, error) {
	var total int64
	err := s.Transaction(ctx, func(tx *Store) error {
		for _, model := range []any{&ProposalSnapshot{}, &RFPSnapshot{}} {
			res := tx.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}
