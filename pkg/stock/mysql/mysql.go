// Package mysql persists ingredient stock in MySQL through gorm.
package mysql

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backoffice/pkg/stock"
)

type ingredientModel struct {
	ID           string          `gorm:"primaryKey;size:64"`
	CompanyID    int64           `gorm:"index;not null;default:1"`
	Name         string          `gorm:"size:255;not null"`
	Unit         string          `gorm:"size:32"`
	OnHand       decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	MinThreshold decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ingredientModel) TableName() string { return "ingredients" }

func toModel(i stock.Ingredient) ingredientModel {
	return ingredientModel{
		ID:           i.ID,
		CompanyID:    i.CompanyID,
		Name:         i.Name,
		Unit:         i.Unit,
		OnHand:       i.OnHand,
		MinThreshold: i.MinThreshold,
	}
}

func (m ingredientModel) toDomain() stock.Ingredient {
	return stock.Ingredient{
		ID:           m.ID,
		CompanyID:    m.CompanyID,
		Name:         m.Name,
		Unit:         m.Unit,
		OnHand:       m.OnHand,
		MinThreshold: m.MinThreshold,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// Repository is a gorm-backed stock.Repository.
type Repository struct {
	db *gorm.DB
}

var _ stock.Repository = (*Repository)(nil)

// Open connects to MySQL with duplicate-key translation enabled.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	return db, errors.Wrap(err, "open mysql")
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the ingredients table.
func (r *Repository) Migrate(ctx context.Context) error {
	return errors.Wrap(r.db.WithContext(ctx).AutoMigrate(&ingredientModel{}), "migrate ingredients")
}

func (r *Repository) Create(ctx context.Context, i stock.Ingredient) error {
	m := toModel(i)
	err := r.db.WithContext(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return stock.ErrExists
	}
	return errors.Wrap(err, "insert ingredient")
}

func (r *Repository) Get(ctx context.Context, id string) (stock.Ingredient, error) {
	var m ingredientModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return stock.Ingredient{}, stock.ErrNotFound
	}
	if err != nil {
		return stock.Ingredient{}, errors.Wrap(err, "select ingredient")
	}
	return m.toDomain(), nil
}

func (r *Repository) List(ctx context.Context, companyID int64) ([]stock.Ingredient, error) {
	var models []ingredientModel
	if err := r.db.WithContext(ctx).Where("company_id = ?", companyID).Order("id").Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "list ingredients")
	}
	out := make([]stock.Ingredient, 0, len(models))
	for _, m := range models {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (r *Repository) Update(ctx context.Context, i stock.Ingredient) error {
	res := r.db.WithContext(ctx).Model(&ingredientModel{}).Where("id = ?", i.ID).Updates(map[string]any{
		"company_id":    i.CompanyID,
		"name":          i.Name,
		"unit":          i.Unit,
		"min_threshold": i.MinThreshold,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "update ingredient")
	}
	if res.RowsAffected == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&ingredientModel{}, "id = ?", id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete ingredient")
	}
	if res.RowsAffected == 0 {
		return stock.ErrNotFound
	}
	return nil
}

// ConditionalDecrement issues a single guarded UPDATE; InnoDB row locking
// makes the predicate and the write atomic.
func (r *Repository) ConditionalDecrement(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&ingredientModel{}).
		Where("id = ? AND on_hand >= ?", id, amount).
		Updates(map[string]any{
			"on_hand":    gorm.Expr("on_hand - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "decrement ingredient %s", id)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) Increment(ctx context.Context, id string, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&ingredientModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"on_hand":    gorm.Expr("on_hand + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "increment ingredient %s", id)
	}
	if res.RowsAffected == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (r *Repository) ReadQuantity(ctx context.Context, id string) (decimal.Decimal, error) {
	var m ingredientModel
	err := r.db.WithContext(ctx).Select("on_hand").Take(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "read ingredient %s", id)
	}
	return m.OnHand, nil
}
