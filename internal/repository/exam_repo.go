package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-exam-grader/internal/models"
)

// ExamRepository exposes persistence helpers for exams and their results.
type ExamRepository interface {
	CreateWithResult(ctx context.Context, exam *models.Exam, result *models.ExamResult) error
	UpsertResult(ctx context.Context, result *models.ExamResult) error
	GetByID(ctx context.Context, id uint) (models.Exam, error)
	List(ctx context.Context) ([]models.Exam, error)
}

// NewExamRepository constructs an exam repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

type examRepository struct {
	db *gorm.DB
}

func (r *examRepository) CreateWithResult(ctx context.Context, exam *models.Exam, result *models.ExamResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(exam).Error; err != nil {
			return err
		}

		result.ExamID = exam.ID
		if err := upsertResult(tx, result); err != nil {
			return err
		}

		exam.Result = result
		return nil
	})
}

func (r *examRepository) UpsertResult(ctx context.Context, result *models.ExamResult) error {
	return upsertResult(r.db.WithContext(ctx), result)
}

func (r *examRepository) GetByID(ctx context.Context, id uint) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).Preload("Result").First(&exam, id).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) List(ctx context.Context) ([]models.Exam, error) {
	var exams []models.Exam
	if err := r.db.WithContext(ctx).Preload("Result").Order("id ASC").Find(&exams).Error; err != nil {
		return nil, err
	}
	return exams, nil
}

func upsertResult(tx *gorm.DB, result *models.ExamResult) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "exam_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"feedback", "score", "updated_at"}),
	}).Create(result).Error
}
