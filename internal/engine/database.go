package engine

import (
	"errors"

	"github.com/triarb/triarb-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateAttempt(attempt *types.TradeAttempt) error {
	return d.db.Create(attempt).Error
}

func (d *Database) UpdateAttempt(attempt *types.TradeAttempt) error {
	return d.db.Save(attempt).Error
}

func (d *Database) CreateLeg(leg *types.OrderLeg) error {
	return d.db.Create(leg).Error
}

func (d *Database) UpdateLeg(leg *types.OrderLeg) error {
	return d.db.Save(leg).Error
}

// GetAttempt returns an attempt with its legs preloaded in leg order.
func (d *Database) GetAttempt(attemptID string) (*types.TradeAttempt, error) {
	var attempt types.TradeAttempt
	err := d.db.Preload("Legs", func(db *gorm.DB) *gorm.DB {
		return db.Order("leg_number ASC")
	}).Where("attempt_id = ?", attemptID).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// GetAttemptByClient returns an attempt only if it belongs to the client.
func (d *Database) GetAttemptByClient(attemptID, clientID string) (*types.TradeAttempt, error) {
	attempt, err := d.GetAttempt(attemptID)
	if err != nil || attempt == nil {
		return nil, err
	}
	if attempt.ClientID != clientID {
		return nil, nil
	}
	return attempt, nil
}

// GetClientAttempts lists a client's attempts, newest first.
func (d *Database) GetClientAttempts(clientID string) ([]types.TradeAttempt, error) {
	var attempts []types.TradeAttempt
	err := d.db.Preload("Legs", func(db *gorm.DB) *gorm.DB {
		return db.Order("leg_number ASC")
	}).Where("client_id = ?", clientID).
		Order("created_at DESC").Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// OpenLegs returns the attempt's legs still in pending or new state.
func (d *Database) OpenLegs(attemptID string) ([]types.OrderLeg, error) {
	var legs []types.OrderLeg
	err := d.db.Where("attempt_id = ?", attemptID).
		Where("status IN ?", []string{types.LegStatusPending, types.LegStatusNew}).
		Order("leg_number ASC").
		Find(&legs).Error
	if err != nil {
		return nil, err
	}
	return legs, nil
}
